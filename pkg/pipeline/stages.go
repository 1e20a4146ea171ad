// Package pipeline runs the stages of collaborative proving. Every stage
// maps declared input artifacts to output artifacts; the network stages
// additionally run one session with the other parties.
package pipeline

import "fmt"

// Stage names a pipeline step.
type Stage uint8

const (
	SplitWitness Stage = iota + 1
	SplitInput
	MergeInputShares
	GenerateWitness
	TranslateWitness
	GenerateProof
	CreateVK
	Verify
	CreateCRS
)

// Descriptor declares what a stage consumes and produces.
type Descriptor struct {
	Name     string
	Requires []string
	Produces []string
	Network  bool
}

var descriptors = map[Stage]Descriptor{
	SplitWitness: {
		Name:     "split-witness",
		Requires: []string{"cleartext witness", "circuit"},
		Produces: []string{"N witness share files"},
	},
	SplitInput: {
		Name:     "split-input",
		Requires: []string{"cleartext input", "circuit"},
		Produces: []string{"N input share files"},
	},
	MergeInputShares: {
		Name:     "merge-input-shares",
		Requires: []string{"at least 2 input share files with disjoint keys"},
		Produces: []string{"merged input share file"},
	},
	GenerateWitness: {
		Name:     "generate-witness",
		Requires: []string{"merged input share file", "circuit"},
		Produces: []string{"witness share file"},
		Network:  true,
	},
	TranslateWitness: {
		Name:     "translate-witness",
		Requires: []string{"REP3 witness share file"},
		Produces: []string{"Shamir witness share file"},
		Network:  true,
	},
	GenerateProof: {
		Name:     "generate-proof",
		Requires: []string{"witness share file", "circuit", "crs"},
		Produces: []string{"proof", "public input listing"},
		Network:  true,
	},
	CreateVK: {
		Name:     "create-vk",
		Requires: []string{"circuit", "crs"},
		Produces: []string{"verifying key"},
	},
	Verify: {
		Name:     "verify",
		Requires: []string{"proof", "verifying key", "crs"},
		Produces: []string{"verification result"},
	},
	CreateCRS: {
		Name:     "create-crs",
		Produces: []string{"crs"},
	},
}

// Stages lists the stages in pipeline order.
func Stages() []Stage {
	return []Stage{SplitWitness, SplitInput, MergeInputShares, GenerateWitness, TranslateWitness, GenerateProof, CreateVK, Verify, CreateCRS}
}

// Describe returns the declaration of s.
func (s Stage) Describe() Descriptor { return descriptors[s] }

// Network reports whether s runs a session with the other parties.
func (s Stage) Network() bool { return descriptors[s].Network }

func (s Stage) String() string {
	if d, ok := descriptors[s]; ok {
		return d.Name
	}
	return fmt.Sprintf("stage(%d)", uint8(s))
}
