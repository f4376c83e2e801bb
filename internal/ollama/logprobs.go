package ollama

import (
	"bytes"
	"encoding/json"
	"fmt"
	"iter"
	"slices"
)

// CompletionLogProbs is the "logprobs" object of a completion choice.
// The three slices are index-aligned.
type CompletionLogProbs struct {
	Tokens        []string         `json:"tokens"`
	TokenLogprobs []float64        `json:"token_logprobs"`
	TopLogprobs   []TopLogprobsMap `json:"top_logprobs"`
}

// TopLogprobsMap is a token -> logprob object that remembers the order
// its keys appeared in.
type TopLogprobsMap []TopLogProb

func (m *TopLogprobsMap) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*m = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("top_logprobs entry must be an object, got %v", tok)
	}

	entries := TopLogprobsMap{}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("top_logprobs key must be a string, got %v", keyTok)
		}

		var logprob float64
		if err := dec.Decode(&logprob); err != nil {
			return fmt.Errorf("top_logprobs[%q]: %w", key, err)
		}

		entries = append(entries, TopLogProb{Token: key, Logprob: logprob})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*m = entries
	return nil
}

// MarshalJSON writes the candidates as an object in their original order.
// A nil map, decoded from null, is written back as null.
func (m TopLogprobsMap) MarshalJSON() ([]byte, error) {
	if m == nil {
		return []byte("null"), nil
	}

	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, e := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(e.Token)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(e.Logprob)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// LogProb is the provider-agnostic per-token log probability.
type LogProb struct {
	Token       string       `json:"token"`
	Logprob     float64      `json:"logprob"`
	TopLogprobs []TopLogProb `json:"topLogprobs"`
}

type TopLogProb struct {
	Token   string  `json:"token"`
	Logprob float64 `json:"logprob"`
}

// All yields one LogProb per token, lazily. A nil receiver yields nothing.
func (lp *CompletionLogProbs) All() iter.Seq[LogProb] {
	return func(yield func(LogProb) bool) {
		if lp == nil {
			return
		}

		for i, token := range lp.Tokens {
			entry := LogProb{
				Token:       token,
				Logprob:     lp.TokenLogprobs[i],
				TopLogprobs: []TopLogProb{},
			}

			if lp.TopLogprobs != nil {
				entry.TopLogprobs = append(entry.TopLogprobs, lp.TopLogprobs[i]...)
			}

			if !yield(entry) {
				return
			}
		}
	}
}

// MapCompletionLogProbs normalizes completion log probabilities. A nil
// input means none were returned and maps to nil.
func MapCompletionLogProbs(lp *CompletionLogProbs) []LogProb {
	if lp == nil {
		return nil
	}
	return slices.AppendSeq(make([]LogProb, 0, len(lp.Tokens)), lp.All())
}
