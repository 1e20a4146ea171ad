package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/luxfi/coproof/pkg/config"
	"github.com/luxfi/coproof/pkg/math/curve"
	"github.com/luxfi/coproof/pkg/pipeline"
	"github.com/luxfi/coproof/pkg/share"
	"github.com/luxfi/coproof/pkg/transport"
	"github.com/luxfi/coproof/pkg/transport/tcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const (
	exitOK      = 0
	exitInvalid = 1
	exitFatal   = 2
)

// errInvalidProof is returned by verify when the proof does not verify. It
// is not a failure of the tool.
var errInvalidProof = errors.New("proof is invalid")

var (
	// Global flags
	networkFile string
	verbose     bool

	// Sharing options
	schemeName string
	threshold  int
	parties    int
	curveName  string

	// Artifact paths
	circuitFile string
	inputFile   string
	inputFiles  []string
	witnessFile string
	outputFile  string
	crsFile     string
	vkFile      string
	proofFile   string
	publicFile  string

	logger = zap.NewNop()

	rootCmd = &cobra.Command{
		Use:   "coproof",
		Short: "Collaborative proving over secret-shared witnesses",
		Long: `coproof splits witnesses and inputs into REP3 or Shamir shares, extends and
translates them jointly with the other parties, and proves and verifies over
the shared witness. Each party runs its own coproof process.`,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setupLogger,
	}

	splitWitnessCmd = &cobra.Command{
		Use:   "split-witness",
		Short: "Share a cleartext witness among the parties",
		RunE:  runSplitWitness,
	}

	splitInputCmd = &cobra.Command{
		Use:   "split-input",
		Short: "Share a contributor's cleartext input among the parties",
		RunE:  runSplitInput,
	}

	mergeCmd = &cobra.Command{
		Use:   "merge-input-shares",
		Short: "Merge the input shares several contributors dealt to this party",
		RunE:  runMerge,
	}

	generateWitnessCmd = &cobra.Command{
		Use:   "generate-witness",
		Short: "Extend merged input shares to witness shares (network)",
		RunE:  runGenerateWitness,
	}

	translateCmd = &cobra.Command{
		Use:   "translate-witness",
		Short: "Reshare a REP3 witness under Shamir (network)",
		RunE:  runTranslate,
	}

	proveCmd = &cobra.Command{
		Use:   "generate-proof",
		Short: "Prove over a shared witness (network)",
		RunE:  runProve,
	}

	createVKCmd = &cobra.Command{
		Use:   "create-vk",
		Short: "Derive the verifying key of a circuit",
		RunE:  runCreateVK,
	}

	verifyCmd = &cobra.Command{
		Use:   "verify",
		Short: "Verify a proof; exits 1 if it is invalid",
		RunE:  runVerify,
	}

	createCRSCmd = &cobra.Command{
		Use:   "create-crs",
		Short: "Create a common reference string",
		RunE:  runCreateCRS,
	}

	keygenCmd = &cobra.Command{
		Use:   "keygen",
		Short: "Generate a party identity key",
		RunE:  runKeygen,
	}

	simulateCmd = &cobra.Command{
		Use:   "simulate",
		Short: "Run the pipeline for all parties in one process",
		RunE:  runSimulation,
	}

	benchCmd = &cobra.Command{
		Use:   "bench",
		Short: "Time the pipeline stages over an in-process network",
		RunE:  runBenchmark,
	}

	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Display stages, schemes and curves",
		RunE:  runInfo,
	}
)

func schemeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&schemeName, "scheme", "s", "rep3", "Sharing scheme: rep3, shamir")
	cmd.Flags().IntVarP(&threshold, "threshold", "t", 1, "Shamir threshold")
	cmd.Flags().IntVarP(&parties, "parties", "N", 3, "Shamir party count")
}

func required(cmd *cobra.Command, names ...string) {
	for _, name := range names {
		_ = cmd.MarkFlagRequired(name)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&networkFile, "network", "", "Network configuration (TOML) for network stages")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")

	splitWitnessCmd.Flags().StringVar(&witnessFile, "witness", "", "Cleartext witness (JSON array)")
	splitWitnessCmd.Flags().StringVar(&circuitFile, "circuit", "", "Circuit description")
	splitWitnessCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Base name of the share files")
	schemeFlags(splitWitnessCmd)
	required(splitWitnessCmd, "witness", "circuit", "out")

	splitInputCmd.Flags().StringVar(&inputFile, "input", "", "Cleartext input (JSON object)")
	splitInputCmd.Flags().StringVar(&circuitFile, "circuit", "", "Circuit description")
	splitInputCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Base name of the share files")
	schemeFlags(splitInputCmd)
	required(splitInputCmd, "input", "circuit", "out")

	mergeCmd.Flags().StringSliceVar(&inputFiles, "inputs", nil, "Input share files of this party")
	mergeCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Merged share file")
	mergeCmd.Flags().StringVar(&curveName, "curve", curve.BN254, "Curve of the shares")
	required(mergeCmd, "inputs", "out")

	generateWitnessCmd.Flags().StringVar(&inputFile, "input", "", "Merged input share file")
	generateWitnessCmd.Flags().StringVar(&circuitFile, "circuit", "", "Circuit description")
	generateWitnessCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Witness share file")
	required(generateWitnessCmd, "input", "circuit", "out")

	translateCmd.Flags().StringVar(&witnessFile, "witness", "", "REP3 witness share file")
	translateCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Shamir witness share file")
	translateCmd.Flags().StringVar(&curveName, "curve", curve.BN254, "Curve of the shares")
	translateCmd.Flags().String("src-scheme", "rep3", "Scheme of the witness shares")
	translateCmd.Flags().String("target-scheme", "shamir", "Scheme to translate to")
	translateCmd.Flags().IntVarP(&threshold, "threshold", "t", 1, "Threshold of the target scheme")
	required(translateCmd, "witness", "out")

	proveCmd.Flags().StringVar(&witnessFile, "witness", "", "Witness share file")
	proveCmd.Flags().StringVar(&circuitFile, "circuit", "", "Circuit description")
	proveCmd.Flags().StringVar(&crsFile, "crs", "", "Common reference string")
	proveCmd.Flags().StringVar(&proofFile, "proof", "", "Proof output")
	proveCmd.Flags().StringVar(&publicFile, "public-input", "", "Public input listing output (optional)")
	schemeFlags(proveCmd)
	required(proveCmd, "witness", "circuit", "crs", "proof")

	createVKCmd.Flags().StringVar(&circuitFile, "circuit", "", "Circuit description")
	createVKCmd.Flags().StringVar(&crsFile, "crs", "", "Common reference string")
	createVKCmd.Flags().StringVar(&vkFile, "vk", "", "Verifying key output")
	required(createVKCmd, "circuit", "crs", "vk")

	verifyCmd.Flags().StringVar(&proofFile, "proof", "", "Proof")
	verifyCmd.Flags().StringVar(&vkFile, "vk", "", "Verifying key")
	verifyCmd.Flags().StringVar(&crsFile, "crs", "", "Common reference string")
	required(verifyCmd, "proof", "vk", "crs")

	createCRSCmd.Flags().StringVar(&circuitFile, "circuit", "", "Size the CRS for this circuit")
	createCRSCmd.Flags().StringVar(&curveName, "curve", curve.BN254, "Curve, if no circuit is given")
	createCRSCmd.Flags().Int("size", 0, "Number of generators, if no circuit is given")
	createCRSCmd.Flags().StringVarP(&outputFile, "out", "o", "", "CRS output")
	required(createCRSCmd, "out")

	keygenCmd.Flags().StringVarP(&outputFile, "out", "o", "", "Key file")
	required(keygenCmd, "out")

	simulateCmd.Flags().String("scenario", "pipeline", "Scenario: pipeline, network-failure, parameter-mismatch")
	simulateCmd.Flags().String("dir", "", "Directory for the artifacts (default: a temporary directory)")

	benchCmd.Flags().Int("iterations", 5, "Number of runs per stage")

	rootCmd.AddCommand(splitWitnessCmd, splitInputCmd, mergeCmd, generateWitnessCmd, translateCmd,
		proveCmd, createVKCmd, verifyCmd, createCRSCmd, keygenCmd, simulateCmd, benchCmd, infoCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}

// execute runs the command line and maps the outcome to an exit code.
func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	_ = logger.Sync()
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errInvalidProof):
		fmt.Fprintln(os.Stderr, "proof is invalid")
		return exitInvalid
	default:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFatal
	}
}

func setupLogger(cmd *cobra.Command, args []string) error {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		return err
	}
	logger = l.With(zap.String("command", cmd.Name()))
	return nil
}

func sharing() (share.Scheme, share.Params, error) {
	s, err := share.ParseScheme(schemeName)
	if err != nil {
		return 0, share.Params{}, err
	}
	return s, share.Params{Parties: parties, Threshold: threshold}, nil
}

func offline() *pipeline.Orchestrator {
	return pipeline.New(pipeline.WithLogger(logger))
}

// networked returns an orchestrator connecting to the parties of the
// network configuration, which must list exactly parties entries.
func networked(parties int) (*pipeline.Orchestrator, error) {
	if networkFile == "" {
		return nil, fmt.Errorf("%w: network stages need --network", config.ErrInvalidConfig)
	}
	n, err := config.Load(networkFile)
	if err != nil {
		return nil, err
	}
	if n.Size() != parties {
		return nil, fmt.Errorf("%s: %w: %d parties configured, the scheme needs %d",
			networkFile, config.ErrInvalidConfig, n.Size(), parties)
	}
	cfg, err := n.TCP(logger)
	if err != nil {
		return nil, err
	}
	connect := pipeline.ConnectorFunc(func(ctx context.Context) (transport.Messenger, error) {
		m, err := tcp.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return m, nil
	})
	return pipeline.New(
		pipeline.WithNetwork(n.Self.ID, connect),
		pipeline.WithLogger(logger),
		pipeline.WithRoundTimeout(n.RoundTimeout()),
	), nil
}

func runSplitWitness(cmd *cobra.Command, args []string) error {
	s, p, err := sharing()
	if err != nil {
		return err
	}
	paths, err := offline().SplitWitness(pipeline.SplitRequest{Values: witnessFile, Circuit: circuitFile, Out: outputFile, Scheme: s, Params: p})
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(paths, "\n"))
	return nil
}

func runSplitInput(cmd *cobra.Command, args []string) error {
	s, p, err := sharing()
	if err != nil {
		return err
	}
	paths, err := offline().SplitInput(pipeline.SplitRequest{Values: inputFile, Circuit: circuitFile, Out: outputFile, Scheme: s, Params: p})
	if err != nil {
		return err
	}
	fmt.Println(strings.Join(paths, "\n"))
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	return offline().MergeInputShares(pipeline.MergeRequest{Inputs: inputFiles, Out: outputFile, Curve: curveName})
}

func runGenerateWitness(cmd *cobra.Command, args []string) error {
	o, err := networked(share.DefaultParams().Parties)
	if err != nil {
		return err
	}
	return o.GenerateWitness(cmd.Context(), pipeline.GenerateWitnessRequest{Input: inputFile, Circuit: circuitFile, Out: outputFile})
}

func runTranslate(cmd *cobra.Command, args []string) error {
	srcName, _ := cmd.Flags().GetString("src-scheme")
	dstName, _ := cmd.Flags().GetString("target-scheme")
	src, err := share.ParseScheme(srcName)
	if err != nil {
		return err
	}
	dst, err := share.ParseScheme(dstName)
	if err != nil {
		return err
	}
	o, err := networked(share.DefaultParams().Parties)
	if err != nil {
		return err
	}
	return o.TranslateWitness(cmd.Context(), pipeline.TranslateRequest{
		Witness: witnessFile,
		Out:     outputFile,
		Curve:   curveName,
		Source:  src,
		Target:  dst,
		Params:  share.Params{Parties: share.DefaultParams().Parties, Threshold: threshold},
	})
}

func runProve(cmd *cobra.Command, args []string) error {
	s, p, err := sharing()
	if err != nil {
		return err
	}
	o, err := networked(p.Parties)
	if err != nil {
		return err
	}
	return o.GenerateProof(cmd.Context(), pipeline.ProveRequest{
		Witness:      witnessFile,
		Circuit:      circuitFile,
		CRS:          crsFile,
		Proof:        proofFile,
		PublicInputs: publicFile,
		Scheme:       s,
		Params:       p,
	})
}

func runCreateVK(cmd *cobra.Command, args []string) error {
	return offline().CreateVK(pipeline.KeyRequest{Circuit: circuitFile, CRS: crsFile, Out: vkFile})
}

func runVerify(cmd *cobra.Command, args []string) error {
	ok, err := offline().Verify(pipeline.VerifyRequest{Proof: proofFile, Key: vkFile, CRS: crsFile})
	if err != nil {
		return err
	}
	if !ok {
		return errInvalidProof
	}
	fmt.Println("proof is valid")
	return nil
}

func runCreateCRS(cmd *cobra.Command, args []string) error {
	size, _ := cmd.Flags().GetInt("size")
	return offline().CreateCRS(pipeline.CRSRequest{Circuit: circuitFile, Curve: curveName, Size: size, Out: outputFile})
}

func runKeygen(cmd *cobra.Command, args []string) error {
	key, err := config.GenerateKey()
	if err != nil {
		return err
	}
	if err := config.SaveKey(outputFile, key); err != nil {
		return err
	}
	fmt.Println(config.PublicKeyHex(key))
	return nil
}

func runInfo(cmd *cobra.Command, args []string) error {
	fmt.Printf("Stages:\n")
	for _, s := range pipeline.Stages() {
		d := s.Describe()
		network := ""
		if d.Network {
			network = " (network)"
		}
		fmt.Printf("  %-20s%s\n", d.Name, network)
		if len(d.Requires) > 0 {
			fmt.Printf("      requires: %s\n", strings.Join(d.Requires, ", "))
		}
		fmt.Printf("      produces: %s\n", strings.Join(d.Produces, ", "))
	}

	fmt.Printf("\nSchemes:\n")
	for _, s := range share.Schemes {
		fmt.Printf("  - %s\n", s)
	}
	fmt.Printf("  Translation: %s -> %s\n", share.REP3, share.Shamir)

	fmt.Printf("\nCurves:\n")
	for _, name := range curve.Names() {
		fmt.Printf("  - %s\n", name)
	}

	if verbose && networkFile != "" {
		n, err := config.Load(networkFile)
		if err != nil {
			return err
		}
		fmt.Printf("\nNetwork: party %s of %d, round timeout %s\n", n.Self.ID, n.Size(), n.RoundTimeout())
		for _, p := range n.Parties {
			fmt.Printf("  %s  %s\n", p.ID, p.Address)
		}
	}
	return nil
}
