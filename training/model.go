package training

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"doc-classifier/classifier"
	"doc-classifier/encoder"
	"doc-classifier/errors"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Model bundles everything needed to classify new documents.
type Model struct {
	ID         uuid.UUID
	Version    int
	CreatedAt  time.Time
	Options    Options
	Encoder    *encoder.Encoder
	Classifier classifier.Classifier
	Summary    *Summary
}

// Envelope field numbers.
const (
	fieldVersion   protowire.Number = 1
	fieldID        protowire.Number = 2
	fieldCreatedAt protowire.Number = 3
	fieldPayload   protowire.Number = 4
	fieldChecksum  protowire.Number = 5
)

type payload struct {
	Options    Options         `json:"options"`
	Encoder    json.RawMessage `json:"encoder"`
	Classifier json.RawMessage `json:"classifier"`
	Summary    *Summary        `json:"summary,omitempty"`
}

// Save writes m as a protobuf-framed envelope around a JSON payload. The
// version is negotiated down to the oldest one able to carry the model.
func Save(w io.Writer, m *Model) (int, error) {
	enc, err := json.Marshal(m.Encoder)
	if err != nil {
		return 0, fmt.Errorf("marshal encoder: %w", err)
	}
	clf, err := classifier.Marshal(m.Classifier)
	if err != nil {
		return 0, fmt.Errorf("marshal classifier: %w", err)
	}
	body, err := json.Marshal(payload{Options: m.Options, Encoder: enc, Classifier: clf, Summary: m.Summary})
	if err != nil {
		return 0, err
	}
	createdAt, err := proto.Marshal(timestamppb.New(m.CreatedAt))
	if err != nil {
		return 0, err
	}
	id, err := m.ID.MarshalBinary()
	if err != nil {
		return 0, err
	}
	version := NegotiateVersion(Features(m.Options.Encoder, m.Options.Classifier))
	checksum := blake2b.Sum256(body)

	var b []byte
	b = protowire.AppendTag(b, fieldVersion, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(version))
	b = protowire.AppendTag(b, fieldID, protowire.BytesType)
	b = protowire.AppendBytes(b, id)
	b = protowire.AppendTag(b, fieldCreatedAt, protowire.BytesType)
	b = protowire.AppendBytes(b, createdAt)
	b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, body)
	b = protowire.AppendTag(b, fieldChecksum, protowire.BytesType)
	b = protowire.AppendBytes(b, checksum[:])
	if _, err := w.Write(b); err != nil {
		return 0, err
	}
	m.Version = version
	return version, nil
}

// Marshal is Save into a byte slice.
func Marshal(m *Model) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := Save(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Header is the envelope metadata, readable without decoding the payload.
type Header struct {
	Version   int
	ID        uuid.UUID
	CreatedAt time.Time
}

type envelope struct {
	Header
	payload  []byte
	checksum []byte
}

func decodeEnvelope(b []byte) (*envelope, error) {
	env := &envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", errors.ErrCorruptModel, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == fieldVersion && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: version: %v", errors.ErrCorruptModel, protowire.ParseError(n))
			}
			env.Version, b = int(v), b[n:]
		case typ == protowire.BytesType && num >= fieldID && num <= fieldChecksum:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errors.ErrCorruptModel, num, protowire.ParseError(n))
			}
			b = b[n:]
			if err := env.set(num, v); err != nil {
				return nil, err
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("%w: field %d: %v", errors.ErrCorruptModel, num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if env.Version == 0 || env.payload == nil {
		return nil, fmt.Errorf("%w: missing version or payload", errors.ErrCorruptModel)
	}
	return env, nil
}

func (env *envelope) set(num protowire.Number, v []byte) error {
	switch num {
	case fieldID:
		if err := env.ID.UnmarshalBinary(v); err != nil {
			return fmt.Errorf("%w: id: %v", errors.ErrCorruptModel, err)
		}
	case fieldCreatedAt:
		var ts timestamppb.Timestamp
		if err := proto.Unmarshal(v, &ts); err != nil {
			return fmt.Errorf("%w: created at: %v", errors.ErrCorruptModel, err)
		}
		env.CreatedAt = ts.AsTime()
	case fieldPayload:
		env.payload = append([]byte{}, v...)
	case fieldChecksum:
		env.checksum = append([]byte{}, v...)
	}
	return nil
}

// ReadHeader decodes the envelope metadata and checks the version.
func ReadHeader(data []byte) (Header, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return Header{}, err
	}
	if env.Version > CurrentVersion {
		return env.Header, fmt.Errorf("%w: %d > %d", errors.ErrVersionTooNew, env.Version, CurrentVersion)
	}
	return env.Header, nil
}

// Load reads a model written by Save. A version newer than CurrentVersion
// and a checksum mismatch are both rejected.
func Load(log *slog.Logger, r io.Reader) (*Model, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Unmarshal(log, data)
}

func Unmarshal(log *slog.Logger, data []byte) (*Model, error) {
	env, err := decodeEnvelope(data)
	if err != nil {
		return nil, err
	}
	if env.Version > CurrentVersion {
		return nil, fmt.Errorf("%w: %d > %d", errors.ErrVersionTooNew, env.Version, CurrentVersion)
	}
	sum := blake2b.Sum256(env.payload)
	if !bytes.Equal(sum[:], env.checksum) {
		return nil, fmt.Errorf("%w: checksum mismatch", errors.ErrCorruptModel)
	}

	var p payload
	if err := json.Unmarshal(env.payload, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrCorruptModel, err)
	}
	enc, err := encoder.Unmarshal(log, p.Encoder)
	if err != nil {
		return nil, err
	}
	clf, err := classifier.Unmarshal(p.Classifier)
	if err != nil {
		return nil, err
	}
	return &Model{
		ID:         env.ID,
		Version:    env.Version,
		CreatedAt:  env.CreatedAt,
		Options:    p.Options,
		Encoder:    enc,
		Classifier: clf,
		Summary:    p.Summary,
	}, nil
}
