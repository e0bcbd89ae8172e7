// Copyright 2026 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-only

package detect

import (
	"context"
	"testing"

	"github.com/kraklabs/repotoire/pkg/graph"
)

func TestCheckPickleLineDetectsPickleLoad(t *testing.T) {
	if _, ok := checkPickleLine("data = pickle.load(f)"); !ok {
		t.Error("expected pickle.load to match")
	}
	if _, ok := checkPickleLine("obj = dill.load(f)"); !ok {
		t.Error("expected dill.load to match")
	}
}

func TestCheckPickleLineTorchSafe(t *testing.T) {
	kind, ok := checkPickleLine("model = torch.load('model.pt')")
	if !ok || kind != pickleTorchUnsafe {
		t.Errorf("expected torch_load_unsafe, got %v ok=%v", kind, ok)
	}
	if _, ok := checkPickleLine("model = torch.load('model.pt', weights_only=True)"); ok {
		t.Error("expected weights_only=True to be safe")
	}
}

func TestCheckPickleLineYAML(t *testing.T) {
	kind, ok := checkPickleLine("data = yaml.load(content)")
	if !ok || kind != pickleYAMLUnsafe {
		t.Errorf("expected yaml_unsafe, got %v ok=%v", kind, ok)
	}
	if _, ok := checkPickleLine("data = yaml.load(content, Loader=yaml.SafeLoader)"); ok {
		t.Error("expected SafeLoader usage to be safe")
	}
	if _, ok := checkPickleLine("data = yaml.safe_load(content)"); ok {
		t.Error("expected yaml.safe_load to be safe")
	}
}

func TestCheckPickleLineNumpy(t *testing.T) {
	kind, ok := checkPickleLine("data = np.load('data.npy', allow_pickle=True)")
	if !ok || kind != pickleNumpy {
		t.Errorf("expected numpy_pickle, got %v ok=%v", kind, ok)
	}
	if _, ok := checkPickleLine("data = np.load('data.npy')"); ok {
		t.Error("expected plain numpy.load to be safe")
	}
}

func TestPickleDetectorEndToEnd(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "loader.py", "data = pickle.load(open('model.pkl', 'rb'))\n")

	d := NewPickleDeserializationDetector(DetectorConfig{})
	findings, err := d.Detect(context.Background(), graph.NewQueryCache(graph.NewStore()), []string{path})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("expected 1 finding, got %d", len(findings))
	}
	if findings[0].CWEID != "CWE-502" {
		t.Errorf("expected CWE-502, got %s", findings[0].CWEID)
	}
}
