package pipeline

import (
	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/circuit"
	"github.com/luxfi/coproof/pkg/math/curve"
	"go.uber.org/zap"
)

// CRSRequest creates a common reference string.
type CRSRequest struct {
	// Circuit, if set, fixes the curve and the minimum size.
	Circuit string
	// Curve defaults to bn254 and is ignored if Circuit is set.
	Curve string
	Size  int
	Out   string
}

// KeyRequest derives the verifying key of a circuit.
type KeyRequest struct {
	Circuit string
	CRS     string
	Out     string
}

// VerifyRequest checks a proof.
type VerifyRequest struct {
	Proof string
	Key   string
	CRS   string
}

// CreateCRS writes a fresh CRS.
func (o *Orchestrator) CreateCRS(req CRSRequest) error {
	return fail(CreateCRS, o.createCRS(req))
}

func (o *Orchestrator) createCRS(req CRSRequest) error {
	if err := nonEmpty(map[string]string{"output": req.Out}); err != nil {
		return err
	}
	var field *curve.Curve
	size := req.Size
	if req.Circuit != "" {
		if err := requireArtifacts(req.Circuit); err != nil {
			return err
		}
		c, err := circuit.Load(req.Circuit)
		if err != nil {
			return err
		}
		field = c.Field()
		size = max(size, c.NumVariables)
	} else {
		var err error
		if field, err = lookup(req.Curve); err != nil {
			return err
		}
	}
	if size < 1 {
		return invalid("crs size %d", size)
	}
	defer o.locks.acquire([]string{req.Circuit}, []string{req.Out})()

	data, err := o.proof.CreateCRS(field, size, o.rand(CreateCRS))
	if err != nil {
		return err
	}
	if err := artifact.WritePublic(req.Out, data); err != nil {
		return err
	}
	o.logger(CreateCRS).Info("wrote crs", zap.String("path", req.Out), zap.Int("size", size))
	return nil
}

// CreateVK derives and writes the verifying key.
func (o *Orchestrator) CreateVK(req KeyRequest) error {
	return fail(CreateVK, o.createVK(req))
}

func (o *Orchestrator) createVK(req KeyRequest) error {
	if err := nonEmpty(map[string]string{"circuit": req.Circuit, "crs": req.CRS, "output": req.Out}); err != nil {
		return err
	}
	if err := requireArtifacts(req.Circuit, req.CRS); err != nil {
		return err
	}
	defer o.locks.acquire([]string{req.Circuit, req.CRS}, []string{req.Out})()

	c, err := circuit.Load(req.Circuit)
	if err != nil {
		return err
	}
	crs, err := artifact.Read(req.CRS)
	if err != nil {
		return err
	}
	vk, err := o.proof.VerifyingKey(c, crs)
	if err != nil {
		return err
	}
	if err := artifact.WritePublic(req.Out, vk); err != nil {
		return err
	}
	o.logger(CreateVK).Info("wrote verifying key", zap.String("path", req.Out))
	return nil
}

// Verify checks a proof. An invalid proof gives false and no error.
func (o *Orchestrator) Verify(req VerifyRequest) (bool, error) {
	ok, err := o.verify(req)
	return ok, fail(Verify, err)
}

func (o *Orchestrator) verify(req VerifyRequest) (bool, error) {
	if err := nonEmpty(map[string]string{"proof": req.Proof, "verifying key": req.Key, "crs": req.CRS}); err != nil {
		return false, err
	}
	if err := requireArtifacts(req.Proof, req.Key, req.CRS); err != nil {
		return false, err
	}
	defer o.locks.acquire([]string{req.Proof, req.Key, req.CRS}, nil)()

	proof, err := artifact.ReadProof(req.Proof)
	if err != nil {
		return false, err
	}
	vk, err := artifact.Read(req.Key)
	if err != nil {
		return false, err
	}
	crs, err := artifact.Read(req.CRS)
	if err != nil {
		return false, err
	}
	var ok bool
	log := o.logger(Verify)
	err = timed(log, "proof checked", func() (err error) {
		ok, err = o.proof.Verify(proof, vk, crs)
		return err
	})
	if err != nil {
		return false, err
	}
	log.Info("verification result", zap.Bool("valid", ok))
	return ok, nil
}
