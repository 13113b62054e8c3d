package model

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// FormatVersion is bumped whenever a payload layout changes. Artifacts with
// another version load as untrained.
const FormatVersion = 1

// kindScaler tags the scaler blob. It is not a model slot.
const kindScaler Kind = "scaler"

// Blob names in the artifact store.
const (
	BlobForest = "forest.msgpack"
	BlobBoost  = "boost.msgpack"
	BlobLSTM   = "lstm.msgpack"
	BlobScaler = "scaler.msgpack"
)

// Info is the metadata stored with every artifact.
type Info struct {
	Kind          Kind      `msgpack:"kind" json:"kind"`
	FormatVersion int       `msgpack:"format_version" json:"format_version"`
	Fingerprint   string    `msgpack:"fingerprint" json:"fingerprint"`
	TrainedAt     time.Time `msgpack:"trained_at" json:"trained_at"`
	Columns       []string  `msgpack:"columns" json:"columns"`
}

type envelope struct {
	Info    Info               `msgpack:"info"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// BlobNames lists the blobs that make up a slot's artifact. The LSTM slot
// needs its scaler too.
func BlobNames(kind Kind) []string {
	switch kind {
	case KindForest:
		return []string{BlobForest}
	case KindBoost:
		return []string{BlobBoost}
	case KindLSTM:
		return []string{BlobScaler, BlobLSTM}
	default:
		return nil
	}
}

// Encode serializes a trained classifier into its named blobs.
func Encode(c Classifier, info Info) (map[string][]byte, error) {
	info.FormatVersion = FormatVersion
	switch m := c.(type) {
	case *Forest:
		info.Kind = KindForest
		data, err := encodeEnvelope(info, m)
		return map[string][]byte{BlobForest: data}, err
	case *Booster:
		info.Kind = KindBoost
		data, err := encodeEnvelope(info, m)
		return map[string][]byte{BlobBoost: data}, err
	case *SequenceModel:
		info.Kind = KindLSTM
		net, err := encodeEnvelope(info, m.Net.state())
		if err != nil {
			return nil, err
		}
		scalerInfo := info
		scalerInfo.Kind = kindScaler
		scalerInfo.Columns = m.Scaler.Columns
		scaler, err := encodeEnvelope(scalerInfo, m.Scaler)
		if err != nil {
			return nil, err
		}
		return map[string][]byte{BlobLSTM: net, BlobScaler: scaler}, nil
	default:
		return nil, fmt.Errorf("encode: unsupported classifier %T", c)
	}
}

// Decode rebuilds the classifier for kind from its blobs. The LSTM is only
// rebuilt when its scaler is present and was fitted on the same columns.
func Decode(kind Kind, blobs map[string][]byte) (Classifier, Info, error) {
	switch kind {
	case KindForest:
		var f Forest
		info, err := decodeEnvelope(blobs[BlobForest], KindForest, &f)
		if err != nil {
			return nil, Info{}, err
		}
		if len(f.Trees) == 0 || f.NumFeatures != len(info.Columns) {
			return nil, Info{}, fmt.Errorf("%w: forest has no trees or wrong width", ErrCorruptArtifact)
		}
		return &f, info, nil

	case KindBoost:
		var b Booster
		info, err := decodeEnvelope(blobs[BlobBoost], KindBoost, &b)
		if err != nil {
			return nil, Info{}, err
		}
		if b.NumFeatures != len(info.Columns) {
			return nil, Info{}, fmt.Errorf("%w: booster width %d, columns %d", ErrCorruptArtifact, b.NumFeatures, len(info.Columns))
		}
		return &b, info, nil

	case KindLSTM:
		var state lstmState
		info, err := decodeEnvelope(blobs[BlobLSTM], KindLSTM, &state)
		if err != nil {
			return nil, Info{}, err
		}
		var scaler Scaler
		if _, err := decodeEnvelope(blobs[BlobScaler], kindScaler, &scaler); err != nil {
			return nil, Info{}, fmt.Errorf("scaler: %w", err)
		}
		if !scaler.Compatible(info.Columns) || len(scaler.Min) != len(scaler.Columns) || len(scaler.Range) != len(scaler.Columns) {
			return nil, Info{}, fmt.Errorf("%w: scaler columns %v do not match lstm columns %v",
				ErrFeatureMismatch, scaler.Columns, info.Columns)
		}
		net, err := lstmFromState(state)
		if err != nil {
			return nil, Info{}, err
		}
		if net.Input != len(info.Columns) {
			return nil, Info{}, fmt.Errorf("%w: lstm input %d, columns %d", ErrFeatureMismatch, net.Input, len(info.Columns))
		}
		return &SequenceModel{Scaler: &scaler, Net: net}, info, nil

	default:
		return nil, Info{}, fmt.Errorf("decode: unknown kind %q", kind)
	}
}

func encodeEnvelope(info Info, payload any) ([]byte, error) {
	raw, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", info.Kind, err)
	}
	data, err := msgpack.Marshal(envelope{Info: info, Payload: raw})
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", info.Kind, err)
	}
	return data, nil
}

var errMissingBlob = errors.New("missing blob")

func decodeEnvelope(data []byte, want Kind, payload any) (Info, error) {
	if data == nil {
		return Info{}, fmt.Errorf("%w: %w for %s", ErrCorruptArtifact, errMissingBlob, want)
	}
	var env envelope
	if err := msgpack.Unmarshal(data, &env); err != nil {
		return Info{}, fmt.Errorf("%w: %s envelope: %w", ErrCorruptArtifact, want, err)
	}
	if env.Info.Kind != want {
		return Info{}, fmt.Errorf("%w: expected %s, found %s", ErrCorruptArtifact, want, env.Info.Kind)
	}
	if env.Info.FormatVersion != FormatVersion {
		return Info{}, fmt.Errorf("%w: %s format version %d, want %d",
			ErrCorruptArtifact, want, env.Info.FormatVersion, FormatVersion)
	}
	if err := msgpack.Unmarshal(env.Payload, payload); err != nil {
		return Info{}, fmt.Errorf("%w: %s payload: %w", ErrCorruptArtifact, want, err)
	}
	return env.Info, nil
}

// sameColumns reports whether info was trained on the given feature order.
func (i Info) sameColumns(columns []string) bool {
	return slices.Equal(i.Columns, columns)
}
