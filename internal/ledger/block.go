package ledger

import (
	"encoding/json"
	"time"
)

// Well-known action types. The vocabulary is open: any other label supplied
// by a caller is stored verbatim.
const (
	ActionGenesis   = "Genesis"
	ActionRegister  = "Register"
	ActionCreated   = "Created"
	ActionEscalated = "Escalated to Validator"
	ActionValidated = "Validated"
	ActionRejected  = "Rejected"
)

// GenesisPreviousHash is the PreviousHash sentinel carried by block 0.
const GenesisPreviousHash = "0"

// Block is a single immutable record of the chain.
type Block struct {
	Index        uint64         `json:"index"`
	Timestamp    time.Time      `json:"timestamp"`
	ActionType   string         `json:"action_type"`
	ReportID     string         `json:"report_id"`    // "" for Genesis and Register blocks
	Actor        string         `json:"actor"`        // System, Reporter, Admin, Validator
	Data         map[string]any `json:"data"`
	DataHash     string         `json:"data_hash"`
	PreviousHash string         `json:"previous_hash"`
	SLADeadline  *time.Time     `json:"sla_deadline"` // set only on Created blocks
}

// wireBlock is the persisted form of a Block. An empty report id is written
// as null so every entry carries the same set of fields.
type wireBlock struct {
	Index        uint64         `json:"index"`
	Timestamp    time.Time      `json:"timestamp"`
	ActionType   string         `json:"action_type"`
	ReportID     *string        `json:"report_id"`
	Actor        string         `json:"actor"`
	Data         map[string]any `json:"data"`
	DataHash     string         `json:"data_hash"`
	PreviousHash string         `json:"previous_hash"`
	SLADeadline  *time.Time     `json:"sla_deadline"`
}

// MarshalJSON implements json.Marshaler.
func (b Block) MarshalJSON() ([]byte, error) {
	w := wireBlock{
		Index:        b.Index,
		Timestamp:    b.Timestamp,
		ActionType:   b.ActionType,
		Actor:        b.Actor,
		Data:         b.Data,
		DataHash:     b.DataHash,
		PreviousHash: b.PreviousHash,
		SLADeadline:  b.SLADeadline,
	}
	if w.Data == nil {
		w.Data = map[string]any{}
	}
	if b.ReportID != "" {
		rid := b.ReportID
		w.ReportID = &rid
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler. Numbers inside Data are kept as
// json.Number so large integers survive a load/save cycle unchanged.
func (b *Block) UnmarshalJSON(raw []byte) error {
	var w wireBlock
	if err := decodeJSON(raw, &w); err != nil {
		return err
	}
	*b = Block{
		Index:        w.Index,
		Timestamp:    w.Timestamp,
		ActionType:   w.ActionType,
		Actor:        w.Actor,
		Data:         w.Data,
		DataHash:     w.DataHash,
		PreviousHash: w.PreviousHash,
		SLADeadline:  w.SLADeadline,
	}
	if w.ReportID != nil {
		b.ReportID = *w.ReportID
	}
	if b.Data == nil {
		b.Data = map[string]any{}
	}
	return nil
}

// clone returns a deep copy of b so callers cannot reach the chain's payloads.
func (b *Block) clone() Block {
	cp := *b
	cp.Data = cloneMap(b.Data)
	if b.SLADeadline != nil {
		d := *b.SLADeadline
		cp.SLADeadline = &d
	}
	return cp
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// StringField returns data[key] when it holds a string.
func (b *Block) StringField(key string) string {
	s, _ := b.Data[key].(string)
	return s
}
