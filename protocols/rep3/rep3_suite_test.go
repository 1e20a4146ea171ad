package rep3_test

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestREP3(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "REP3 Driver Suite")
}
