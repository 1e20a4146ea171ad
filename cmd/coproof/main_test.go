package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/coproof/pkg/artifact"
	"github.com/luxfi/coproof/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodes(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	require.Equal(t, exitOK, execute(ctx, []string{"simulate", "--scenario", "pipeline", "--dir", dir}))

	verify := func(proof string) int {
		return execute(ctx, []string{"verify", "--proof", proof, "--vk", filepath.Join(dir, "vk"), "--crs", filepath.Join(dir, "crs")})
	}
	assert.Equal(t, exitOK, verify(artifact.SharePath(filepath.Join(dir, "proof-rep3"), 2)))
	assert.Equal(t, exitInvalid, verify(filepath.Join(dir, "proof.tampered")))
	assert.Equal(t, exitFatal, verify(filepath.Join(dir, "missing")))
}

func TestSimulatedFailures(t *testing.T) {
	for _, scenario := range []string{"network-failure", "parameter-mismatch"} {
		t.Run(scenario, func(t *testing.T) {
			assert.Equal(t, exitOK, execute(context.Background(), []string{"simulate", "--scenario", scenario, "--dir", t.TempDir()}))
		})
	}
	assert.Equal(t, exitFatal, execute(context.Background(), []string{"simulate", "--scenario", "byzantine", "--dir", t.TempDir()}))
}

func TestOfflineCommands(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	circuit := filepath.Join(dir, "circuit.json")
	require.NoError(t, os.WriteFile(circuit, multiplierCircuit, 0600))
	witness := filepath.Join(dir, "witness.json")
	require.NoError(t, os.WriteFile(witness, []byte(`["1", "2", "3", "4", "6", "24", "31", "29", "-8", "21"]`), 0600))

	split := func(args ...string) int {
		return execute(ctx, append([]string{"split-witness", "--witness", witness, "--circuit", circuit, "--out", filepath.Join(dir, "w")}, args...))
	}
	require.Equal(t, exitOK, split("--scheme", "shamir", "--threshold", "2", "--parties", "5"))
	for i := 0; i < 5; i++ {
		assert.FileExists(t, artifact.SharePath(filepath.Join(dir, "w"), i))
	}
	assert.Equal(t, exitFatal, split("--scheme", "shamir", "--threshold", "5", "--parties", "5"))
	assert.Equal(t, exitFatal, split("--scheme", "rep4"))

	crs := filepath.Join(dir, "crs")
	require.Equal(t, exitOK, execute(ctx, []string{"create-crs", "--circuit", circuit, "--out", crs}))
	require.Equal(t, exitOK, execute(ctx, []string{"create-vk", "--circuit", circuit, "--crs", crs, "--vk", filepath.Join(dir, "vk")}))

	// network stages refuse to run without a network configuration
	networkFile = ""
	assert.Equal(t, exitFatal, execute(ctx, []string{"generate-witness", "--input", "in", "--circuit", circuit, "--out", "out"}))

	key := filepath.Join(dir, "party.key")
	require.Equal(t, exitOK, execute(ctx, []string{"keygen", "--out", key}))
	_, err := config.LoadKey(key)
	assert.NoError(t, err)

	assert.Equal(t, exitOK, execute(ctx, []string{"info"}))
}

func TestNetworkSize(t *testing.T) {
	dir := t.TempDir()
	src := "[self]\nid = 0\nkey_file = \"party0.key\"\n"
	for i := 0; i < 2; i++ {
		key, err := config.GenerateKey()
		require.NoError(t, err)
		require.NoError(t, config.SaveKey(filepath.Join(dir, fmt.Sprintf("party%d.key", i)), key))
		src += fmt.Sprintf("\n[[parties]]\nid = %d\naddress = \"127.0.0.1:%d\"\npublic_key = %q\n", i, 10000+i, config.PublicKeyHex(key))
	}
	networkFile = filepath.Join(dir, "network.toml")
	defer func() { networkFile = "" }()
	require.NoError(t, os.WriteFile(networkFile, []byte(src), 0600))

	_, err := networked(3)
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	_, err = networked(2)
	assert.NoError(t, err)

	// a REP3 proof needs three parties; the mesh is never dialed
	assert.Equal(t, exitFatal, execute(context.Background(), []string{"generate-proof",
		"--witness", "w", "--circuit", "c", "--crs", "crs", "--proof", "p",
		"--scheme", "rep3", "--parties", "3", "--threshold", "1", "--network", networkFile}))
}
