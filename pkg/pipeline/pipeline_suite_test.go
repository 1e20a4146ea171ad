package pipeline_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/coproof/pkg/party"
	"github.com/luxfi/coproof/pkg/pipeline"
	"github.com/luxfi/coproof/pkg/transport"
	"github.com/luxfi/coproof/pkg/transport/mocknet"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap/zaptest"
)

func TestPipeline(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Pipeline Suite")
}

const (
	multiplier  = "../circuit/testdata/multiplier.json"
	passthrough = "../circuit/testdata/passthrough.json"
)

// keepOpen lets consecutive stages share one mock network.
type keepOpen struct{ *mocknet.Messenger }

func (keepOpen) Close() error { return nil }

type cluster struct {
	parties []*pipeline.Orchestrator
}

// newCluster returns n orchestrators connected by a fresh mock network.
func newCluster(n int) *cluster {
	net := mocknet.New(n)
	DeferCleanup(func() {
		for _, m := range net {
			_ = m.Close()
		}
	})
	c := &cluster{}
	for i := range net {
		m := net[i]
		connect := pipeline.ConnectorFunc(func(context.Context) (transport.Messenger, error) {
			return keepOpen{m}, nil
		})
		c.parties = append(c.parties, pipeline.New(
			pipeline.WithNetwork(party.ID(i), connect),
			pipeline.WithLogger(zaptest.NewLogger(GinkgoT())),
			pipeline.WithRoundTimeout(5*time.Second),
			pipeline.WithSeed([]byte("pipeline suite")),
		))
	}
	return c
}

// run calls f for every party concurrently and returns their errors.
func (c *cluster) run(f func(ctx context.Context, i int, o *pipeline.Orchestrator) error) []error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	errs := make([]error, len(c.parties))
	var wg sync.WaitGroup
	for i, o := range c.parties {
		wg.Add(1)
		go func() {
			defer GinkgoRecover()
			defer wg.Done()
			errs[i] = f(ctx, i, o)
		}()
	}
	wg.Wait()
	return errs
}

// mustRun is run expecting every party to succeed.
func (c *cluster) mustRun(f func(ctx context.Context, i int, o *pipeline.Orchestrator) error) {
	for i, err := range c.run(f) {
		Expect(err).NotTo(HaveOccurred(), "party %d", i)
	}
}

func writeJSON(path string, v any) {
	data, err := json.Marshal(v)
	Expect(err).NotTo(HaveOccurred())
	Expect(os.WriteFile(path, data, 0600)).To(Succeed())
}

func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	Expect(err).NotTo(HaveOccurred())
	return data
}

func in(dir, name string) string { return filepath.Join(dir, name) }
