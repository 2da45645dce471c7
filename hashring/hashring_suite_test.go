package hashring_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestHashRing(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "HashRing Suite")
}
