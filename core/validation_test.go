package core

import (
	"errors"
	"math"
	"testing"
)

func TestValidateArtifact(t *testing.T) {
	withID := func(a *Artifact, id ID) *Artifact {
		a.ID = id
		return a
	}

	tests := []struct {
		name     string
		artifact *Artifact
		wantErr  error
	}{
		{name: "valid task", artifact: withID(NewTask("write docs"), "t1")},
		{name: "valid memory", artifact: withID(NewMemory("m", "n", "r"), "m1")},
		{name: "valid idea", artifact: withID(NewIdea("body"), "i1")},
		{name: "valid chunk", artifact: withID(NewCodeChunk("x := 1", LevelBlock), "c1")},
		{name: "nil artifact", artifact: nil, wantErr: ErrInvalidArgument},
		{name: "empty id", artifact: NewTask("no id"), wantErr: ErrEmptyID},
		{
			name: "progress above 100",
			artifact: func() *Artifact {
				a := withID(NewTask("x"), "t2")
				a.Task.Progress = 101
				return a
			}(),
			wantErr: ErrInvalidProgress,
		},
		{
			name: "payload mismatch",
			artifact: func() *Artifact {
				a := withID(NewTask("x"), "t3")
				a.Idea = &Idea{}
				return a
			}(),
			wantErr: ErrPayloadMismatch,
		},
		{
			name:     "unknown kind",
			artifact: &Artifact{ID: "z", Kind: Kind(99)},
			wantErr:  ErrInvalidArgument,
		},
		{
			name: "duplicate tags",
			artifact: func() *Artifact {
				a := withID(NewIdea("x"), "i2")
				a.Tags = []string{"go", "go"}
				return a
			}(),
			wantErr: ErrInvalidArgument,
		},
		{
			name: "self dependency",
			artifact: func() *Artifact {
				a := withID(NewTask("x"), "t4")
				a.Task.Dependencies = []ID{"t4"}
				return a
			}(),
			wantErr: ErrDependencyCycle,
		},
		{
			name: "unknown emotion",
			artifact: func() *Artifact {
				a := withID(NewMemory("m", "n", "r"), "m2")
				a.Memory.Type = MemoryEmotional
				a.Memory.Emotion = "bored"
				return a
			}(),
			wantErr: ErrInvalidArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArtifact(tt.artifact)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateArtifact() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateArtifact() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name    string
		vec     []float32
		wantErr error
	}{
		{name: "unit", vec: []float32{0.6, 0.8, 0}},
		{name: "wrong dims", vec: []float32{1, 0}, wantErr: ErrDimensionMismatch},
		{name: "not normalized", vec: []float32{1, 1, 0}, wantErr: ErrNotNormalized},
		{name: "nan", vec: []float32{float32(math.NaN()), 0, 0}, wantErr: ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.vec, 3)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateVector() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateVector() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}
