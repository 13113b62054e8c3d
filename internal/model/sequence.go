package model

import (
	"context"
	"fmt"
	"log/slog"
)

// SequenceModel scores rows by scaling them and feeding each one to the
// LSTM as a length-1 sequence. There is no temporal window.
type SequenceModel struct {
	Scaler *Scaler
	Net    *LSTM
}

// PredictProba implements Classifier.
func (s *SequenceModel) PredictProba(X [][]float64) ([]float64, error) {
	scaled, err := s.Scaler.Transform(X)
	if err != nil {
		return nil, err
	}
	return s.Net.Predict(asSequences(scaled))
}

func asSequences(X [][]float64) [][][]float64 {
	seqs := make([][][]float64, len(X))
	for i, row := range X {
		seqs[i] = [][]float64{row}
	}
	return seqs
}

// SequenceTrainer fits the scaler on the training rows, then the LSTM on the
// scaled rows.
type SequenceTrainer struct {
	Params LSTMParams
	Logger *slog.Logger
}

// Kind implements Trainer.
func (SequenceTrainer) Kind() Kind { return KindLSTM }

// Train implements Trainer.
func (t SequenceTrainer) Train(ctx context.Context, ds Dataset) (Classifier, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("lstm: %w", ErrEmptyDataset)
	}
	p := t.Params
	if p.Epochs <= 0 {
		p = DefaultLSTMParams()
	}
	if p.ChunkSize <= 0 {
		p.ChunkSize = DefaultLSTMParams().ChunkSize
	}

	scaler, err := FitScaler(ds.Columns, ds.X)
	if err != nil {
		return nil, fmt.Errorf("lstm: %w", err)
	}
	scaled, err := scaler.Transform(ds.X)
	if err != nil {
		return nil, fmt.Errorf("lstm: %w", err)
	}

	net := newLSTM(len(ds.Columns), p.Hidden, newRand(lstmStream))
	loss, err := net.fit(ctx, asSequences(scaled), ds.Y, p, t.Logger)
	if err != nil {
		return nil, fmt.Errorf("lstm: %w", err)
	}
	if t.Logger != nil {
		t.Logger.Info("lstm trained", "epochs", p.Epochs, "rows", ds.Len(), "final_loss", loss)
	}
	return &SequenceModel{Scaler: scaler, Net: net}, nil
}
