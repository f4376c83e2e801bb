package ollama

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMapCompletionLogProbsNil(t *testing.T) {
	t.Parallel()

	require.Nil(t, MapCompletionLogProbs(nil))

	var lp *CompletionLogProbs
	for range lp.All() {
		t.Fatalf("nil logprobs should yield nothing")
	}
}

func TestMapCompletionLogProbsWithoutTopLogprobs(t *testing.T) {
	t.Parallel()

	var lp CompletionLogProbs
	body := `{"tokens":["Hello"," world"],"token_logprobs":[-0.1,-0.2],"top_logprobs":null}`
	require.NoError(t, json.Unmarshal([]byte(body), &lp))

	result := MapCompletionLogProbs(&lp)
	require.Equal(t, []LogProb{
		{Token: "Hello", Logprob: -0.1, TopLogprobs: []TopLogProb{}},
		{Token: " world", Logprob: -0.2, TopLogprobs: []TopLogProb{}},
	}, result)

	b, err := json.Marshal(result[0])
	require.NoError(t, err)
	require.JSONEq(t, `{"token":"Hello","logprob":-0.1,"topLogprobs":[]}`, string(b))
}

func TestMapCompletionLogProbsKeepsCandidateOrder(t *testing.T) {
	t.Parallel()

	var lp CompletionLogProbs
	body := `{
		"tokens": ["a", "b"],
		"token_logprobs": [-1.5, -0.5],
		"top_logprobs": [
			{"z": -3, "a": -1.5, "m": -2},
			{"b": -0.5}
		]
	}`
	require.NoError(t, json.Unmarshal([]byte(body), &lp))

	result := MapCompletionLogProbs(&lp)
	require.Len(t, result, 2)
	require.Equal(t, []TopLogProb{
		{Token: "z", Logprob: -3},
		{Token: "a", Logprob: -1.5},
		{Token: "m", Logprob: -2},
	}, result[0].TopLogprobs)
	require.Equal(t, []TopLogProb{{Token: "b", Logprob: -0.5}}, result[1].TopLogprobs)
}

func TestMapCompletionLogProbsEmpty(t *testing.T) {
	t.Parallel()

	result := MapCompletionLogProbs(&CompletionLogProbs{})
	require.NotNil(t, result)
	require.Empty(t, result)
}

func TestCompletionLogProbsAllStopsEarly(t *testing.T) {
	t.Parallel()

	lp := &CompletionLogProbs{
		Tokens:        []string{"a", "b", "c"},
		TokenLogprobs: []float64{-1, -2, -3},
	}

	var seen []string
	for entry := range lp.All() {
		seen = append(seen, entry.Token)
		if len(seen) == 2 {
			break
		}
	}
	require.Equal(t, []string{"a", "b"}, seen)
}

func TestTopLogprobsMapRoundTrip(t *testing.T) {
	t.Parallel()

	var m TopLogprobsMap
	require.NoError(t, json.Unmarshal([]byte(`{"y":-1,"x":-2}`), &m))

	b, err := json.Marshal(m)
	require.NoError(t, err)
	require.Equal(t, `{"y":-1,"x":-2}`, string(b))

	require.Error(t, json.Unmarshal([]byte(`["y"]`), &m))
}

func TestCompletionLogProbsNullEntriesRoundTrip(t *testing.T) {
	t.Parallel()

	body := `{"tokens":["a","b"],"token_logprobs":[-1,-2],"top_logprobs":[null,{"b":-2}]}`

	var lp CompletionLogProbs
	require.NoError(t, json.Unmarshal([]byte(body), &lp))
	require.Nil(t, lp.TopLogprobs[0])

	b, err := json.Marshal(lp)
	require.NoError(t, err)
	require.JSONEq(t, body, string(b))

	empty, err := json.Marshal(TopLogprobsMap{})
	require.NoError(t, err)
	require.Equal(t, `{}`, string(empty))
}
