package network

import (
	"bytes"
	"encoding/gob"
	"testing"

	G "gorgonia.org/gorgonia"
)

func run(t *testing.T, net NeuralNet, input []float64) []float64 {
	t.Helper()
	if err := net.SetInput(input); err != nil {
		t.Fatal(err)
	}
	vm := G.NewTapeMachine(net.Graph())
	defer vm.Close()
	if err := vm.RunAll(); err != nil {
		t.Fatal(err)
	}
	return append([]float64{}, net.Output().Data().([]float64)...)
}

func newTestNet(t *testing.T, batch int) NeuralNet {
	t.Helper()
	net, err := NewMultiHeadMLP(3, batch, 2, G.NewGraph(), []int{4, 4},
		[]bool{true, true}, G.GlorotU(1.0), []*Activation{TanH(), ReLU()},
		"test")
	if err != nil {
		t.Fatal(err)
	}
	return net
}

func TestNewMultiHeadMLPErrors(t *testing.T) {
	_, err := NewMultiHeadMLP(3, 1, 2, G.NewGraph(), []int{4},
		[]bool{true, true}, G.GlorotU(1.0), []*Activation{TanH()}, "test")
	if err == nil {
		t.Error("expected error for mismatched biases")
	}

	_, err = NewMultiHeadMLP(3, 1, 2, G.NewGraph(), []int{4},
		[]bool{true}, G.GlorotU(1.0), nil, "test")
	if err == nil {
		t.Error("expected error for mismatched activations")
	}
}

func TestCloneWithBatch(t *testing.T) {
	net := newTestNet(t, 1)
	batched, err := net.CloneWithBatch(2)
	if err != nil {
		t.Fatal(err)
	}
	if batched.BatchSize() != 2 {
		t.Fatalf("batch size: got %v, want 2", batched.BatchSize())
	}

	x := []float64{0.1, -0.2, 0.3}
	single := run(t, net, x)
	double := run(t, batched, append(append([]float64{}, x...), x...))

	for i := range single {
		if single[i] != double[i] || single[i] != double[i+2] {
			t.Errorf("output %v differs: %v vs %v", i, single, double)
		}
	}
}

func TestSetAndWeights(t *testing.T) {
	a := newTestNet(t, 1)
	b := newTestNet(t, 1)

	x := []float64{0.5, 0.5, -1}
	if err := b.Set(a); err != nil {
		t.Fatal(err)
	}
	outA, outB := run(t, a, x), run(t, b, x)
	for i := range outA {
		if outA[i] != outB[i] {
			t.Fatalf("Set did not copy weights: %v vs %v", outA, outB)
		}
	}

	c := newTestNet(t, 1)
	if err := c.SetWeights(a.Weights()); err != nil {
		t.Fatal(err)
	}
	outC := run(t, c, x)
	for i := range outA {
		if outA[i] != outC[i] {
			t.Fatalf("SetWeights did not copy weights: %v vs %v", outA, outC)
		}
	}

	if err := c.SetWeights(a.Weights()[:1]); err == nil {
		t.Error("expected error for missing weights")
	}
}

func TestGob(t *testing.T) {
	net := newTestNet(t, 1)
	x := []float64{1, 2, 3}
	want := run(t, net, x)

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(net.(*multiHeadMLP)); err != nil {
		t.Fatal(err)
	}
	var decoded multiHeadMLP
	if err := gob.NewDecoder(&buf).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	if decoded.Graph() == net.Graph() {
		t.Fatal("decoded network shares the graph of the encoded network")
	}

	got := run(t, &decoded, x)
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("decoded network output %v, want %v", got, want)
		}
	}
}

func TestGobDecodeInvalid(t *testing.T) {
	var buf bytes.Buffer
	bad := mlpArchive{Name: "bad", Outputs: 1, Inputs: 2, BatchSize: 1,
		HiddenSizes: []int{4}}
	if err := gob.NewEncoder(&buf).Encode(bad); err != nil {
		t.Fatal(err)
	}
	var net multiHeadMLP
	if err := net.GobDecode(buf.Bytes()); err == nil {
		t.Error("expected error decoding layers without biases")
	}
}

func TestParseActivation(t *testing.T) {
	for _, name := range []string{"relu", "tanh", "identity"} {
		act, err := ParseActivation(name)
		if err != nil {
			t.Fatal(err)
		}
		if act.String() != name {
			t.Errorf("got activation %v, want %v", act, name)
		}
	}
	if _, err := ParseActivation("sigmoid"); err == nil {
		t.Error("expected error for unknown activation")
	}
}
