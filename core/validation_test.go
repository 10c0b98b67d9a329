package core

import (
	"errors"
	"testing"
)

func TestValidateIndexRow(t *testing.T) {
	tests := []struct {
		name    string
		row     *IndexRow
		dim     int
		wantErr error
	}{
		{
			name: "valid row",
			row: &IndexRow{
				ChatID:     "chat-1",
				Text:       "hello",
				Embeddings: make(Vector, EmbeddingDimensions),
			},
			dim:     EmbeddingDimensions,
			wantErr: nil,
		},
		{
			name: "valid row with empty text",
			row: &IndexRow{
				ChatID:     "chat-1",
				Embeddings: make(Vector, 3),
			},
			dim:     3,
			wantErr: nil,
		},
		{
			name:    "nil row",
			row:     nil,
			dim:     EmbeddingDimensions,
			wantErr: ErrInvalidIndexRow,
		},
		{
			name: "empty chat id",
			row: &IndexRow{
				Text:       "hello",
				Embeddings: make(Vector, EmbeddingDimensions),
			},
			dim:     EmbeddingDimensions,
			wantErr: ErrEmptyChatID,
		},
		{
			name: "short vector",
			row: &IndexRow{
				ChatID:     "chat-1",
				Embeddings: make(Vector, 10),
			},
			dim:     EmbeddingDimensions,
			wantErr: ErrDimensionMismatch,
		},
		{
			name: "missing vector",
			row: &IndexRow{
				ChatID: "chat-1",
			},
			dim:     EmbeddingDimensions,
			wantErr: ErrDimensionMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIndexRow(tt.row, tt.dim)
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("ValidateIndexRow() error = %v, want nil", err)
				}
				return
			}

			if err == nil {
				t.Errorf("ValidateIndexRow() error = nil, want %v", tt.wantErr)
				return
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateIndexRow() error = %v, want error wrapping %v", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidIndexRow) {
				t.Errorf("ValidateIndexRow() error = %v, want error wrapping %v", err, ErrInvalidIndexRow)
			}
		})
	}
}
