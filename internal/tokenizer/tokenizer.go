// Package tokenizer implements a minimal byte-pair-style encoder/decoder:
// given a vocabulary and merge-rank table loaded from JSON, it encodes text
// to token ids by applying merges in rank order (lowest rank first) and
// decodes ids back to text.
// The recognizer treats this package as a thin contract (spec §1): it is
// not a faithful reproduction of any specific BPE implementation, only a
// byte-pair-like encoder/decoder sufficient to drive the generation loop.
package tokenizer

import (
	"encoding/json"
	"os"
	"sort"
	"strings"

	"github.com/docreader-go/docreader/internal/docerr"
)

// Tokenizer holds a token<->id vocabulary plus merge ranks, and any
// special tokens (e.g. image placeholder, EOS ids) named by the caller.
type Tokenizer struct {
	tokenToID map[string]int
	idToToken map[int]string
	merges    map[string]int // "a b" -> rank, lower rank merges first
	eosIDs    map[int]bool
}

type vocabFile struct {
	Vocab      map[string]int `json:"vocab"`
	Merges     []string       `json:"merges"`
	SpecialIDs map[string]int `json:"special_tokens"`
}

// Load reads a vocabulary file (a single JSON document with "vocab",
// "merges", and "special_tokens" keys) from path.
func Load(path string, eosTokenNames ...string) (*Tokenizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "tokenizer.Load", err)
	}
	var vf vocabFile
	if err := json.Unmarshal(data, &vf); err != nil {
		return nil, docerr.New(docerr.ModelDeliveryFailed, "tokenizer.Load: json", err)
	}

	t := &Tokenizer{
		tokenToID: vf.Vocab,
		idToToken: make(map[int]string, len(vf.Vocab)),
		merges:    make(map[string]int, len(vf.Merges)),
		eosIDs:    make(map[int]bool),
	}
	for tok, id := range vf.Vocab {
		t.idToToken[id] = tok
	}
	for rank, pair := range vf.Merges {
		t.merges[pair] = rank
	}
	for _, name := range eosTokenNames {
		if id, ok := vf.SpecialIDs[name]; ok {
			t.eosIDs[id] = true
		}
	}
	return t, nil
}

// IsEOS reports whether id is one of the configured end-of-sequence ids.
func (t *Tokenizer) IsEOS(id int) bool {
	return t.eosIDs[id]
}

// TokenID returns the id for a named special or vocabulary token.
func (t *Tokenizer) TokenID(token string) (int, bool) {
	id, ok := t.tokenToID[token]
	return id, ok
}

// Encode tokenizes s into ids. It splits on whitespace boundaries the way
// a byte-pair tokenizer's pre-tokenizer does, then applies BPE merges
// within each word. A merged symbol the vocabulary does not cover is
// looked up byte by byte, and bytes with no token of their own are dropped.
func (t *Tokenizer) Encode(s string) []int {
	var ids []int
	for _, word := range splitPretoken(s) {
		ids = append(ids, t.encodeWord(word)...)
	}
	return ids
}

// EncodeLiteral tokenizes a literal template string without any
// special-token insertion logic, matching the "tokenize without special
// token insertion" contract for the chat prompt template.
func (t *Tokenizer) EncodeLiteral(s string) []int {
	return t.Encode(s)
}

func splitPretoken(s string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		if r == ' ' || r == '\n' || r == '\t' {
			flush()
			words = append(words, string(r))
			continue
		}
		cur.WriteRune(r)
	}
	flush()
	return words
}

func (t *Tokenizer) encodeWord(word string) []int {
	if id, ok := t.tokenToID[word]; ok {
		return []int{id}
	}

	symbols := splitRunes(word)
	for {
		bestRank := -1
		bestIdx := -1
		for i := 0; i < len(symbols)-1; i++ {
			pair := symbols[i] + " " + symbols[i+1]
			if rank, ok := t.merges[pair]; ok {
				if bestRank == -1 || rank < bestRank {
					bestRank = rank
					bestIdx = i
				}
			}
		}
		if bestIdx == -1 {
			break
		}
		merged := symbols[bestIdx] + symbols[bestIdx+1]
		symbols = append(symbols[:bestIdx], append([]string{merged}, symbols[bestIdx+2:]...)...)
	}

	ids := make([]int, 0, len(symbols))
	for _, sym := range symbols {
		if id, ok := t.tokenToID[sym]; ok {
			ids = append(ids, id)
			continue
		}
		ids = append(ids, t.encodeUnknownBytes(sym)...)
	}
	return ids
}

func (t *Tokenizer) encodeUnknownBytes(sym string) []int {
	ids := make([]int, 0, len(sym))
	for _, b := range []byte(sym) {
		key := string(rune(b))
		if id, ok := t.tokenToID[key]; ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func splitRunes(word string) []string {
	runes := []rune(word)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

// Decode joins token ids back into text, dropping ids with no known token.
func (t *Tokenizer) Decode(ids []int) string {
	var sb strings.Builder
	for _, id := range ids {
		if tok, ok := t.idToToken[id]; ok {
			sb.WriteString(tok)
		}
	}
	return strings.TrimSpace(sb.String())
}

// VocabSize returns the number of known tokens, used to validate sampling
// logits length against the tokenizer.
func (t *Tokenizer) VocabSize() int {
	return len(t.tokenToID)
}

// sortedMergeKeys is exposed for tests needing deterministic merge order.
func (t *Tokenizer) sortedMergeKeys() []string {
	keys := make([]string, 0, len(t.merges))
	for k := range t.merges {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return t.merges[keys[i]] < t.merges[keys[j]] })
	return keys
}
