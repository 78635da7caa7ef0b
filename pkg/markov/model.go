package markov

import (
	"src.ikura.sh/pkg/serial"
)

// Flags attached to words in the word table.
const (
	FlagEmote         uint8 = 1 << 0
	FlagSentenceStart uint8 = 1 << 1
	FlagSentenceEnd   uint8 = 1 << 2
)

// Word indices 0 and 1 are the sentence markers; they have no text and
// never appear in the word-to-index map.
const (
	idxStart uint64 = 0
	idxEnd   uint64 = 1
)

// Emotes live in their own namespace in the word-to-index map; a leading
// space cannot occur in a split word, so it marks emote keys.
const emoteSentinel = " "

// storedWord is one entry of the word table.
type storedWord struct {
	Text  string
	Flags uint8
}

// wordRef is one possible successor in a WordList, with its observed
// frequency.
type wordRef struct {
	Index     uint64
	Frequency uint64
}

// wordList holds the successors of one prefix. The invariant
// Total == sum of all Frequency fields holds after every update.
type wordList struct {
	Total uint64
	Words []wordRef

	// index of each word in Words, to keep increments O(1)
	indexMap map[uint64]int
}

func newWordList() *wordList {
	return &wordList{indexMap: make(map[uint64]int)}
}

func (wl *wordList) increment(word uint64) {
	wl.Total++
	if i, ok := wl.indexMap[word]; ok {
		wl.Words[i].Frequency++
		return
	}
	wl.indexMap[word] = len(wl.Words)
	wl.Words = append(wl.Words, wordRef{Index: word, Frequency: 1})
}

// model is the full Markov model: the word table, the word-to-index map,
// and the transition table keyed by prefix hash.
type model struct {
	words     []storedWord
	wordIndex map[string]uint64
	table     map[uint64]*wordList
}

func newModel() *model {
	return &model{
		words: []storedWord{
			{Flags: FlagSentenceStart},
			{Flags: FlagSentenceEnd},
		},
		wordIndex: make(map[string]uint64),
		table:     make(map[uint64]*wordList),
	}
}

// wordIndexOf returns the index for a word, creating a table entry if the
// word is new. Emote words are disambiguated with the leading-space
// sentinel.
func (m *model) wordIndexOf(text string, flags uint8) uint64 {
	key := text
	if flags&FlagEmote != 0 {
		key = emoteSentinel + text
	}
	if idx, ok := m.wordIndex[key]; ok {
		return idx
	}
	idx := uint64(len(m.words))
	m.words = append(m.words, storedWord{Text: text, Flags: flags})
	m.wordIndex[key] = idx
	return idx
}

// hashPrefix hashes a sequence of word indices with FNV-1a over their
// 8-byte little-endian encodings.
func hashPrefix(prefix []uint64) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for _, idx := range prefix {
		for i := 0; i < 8; i++ {
			h ^= uint64(byte(idx >> (8 * i)))
			h *= prime64
		}
	}
	return h
}

func (m *model) serialize(w *serial.Writer) {
	w.Tag(serial.TagMarkovDB)
	serial.WriteSeq(w, m.words, func(w *serial.Writer, sw storedWord) {
		w.Tag(serial.TagMarkovStoredWord)
		w.String(sw.Text)
		w.U8(sw.Flags)
	})
	serial.WriteStringMap(w, m.wordIndex, (*serial.Writer).U64)
	serial.WriteU64Map(w, m.table, func(w *serial.Writer, wl *wordList) {
		w.Tag(serial.TagMarkovWordList)
		w.U64(wl.Total)
		serial.WriteSeq(w, wl.Words, func(w *serial.Writer, ref wordRef) {
			w.Tag(serial.TagMarkovWord)
			w.U64(ref.Index)
			w.U64(ref.Frequency)
		})
	})
}

func readModel(r *serial.Reader) (*model, error) {
	if err := r.ExpectTag(serial.TagMarkovDB); err != nil {
		return nil, err
	}
	words, err := serial.ReadSeq(r, func(r *serial.Reader) (storedWord, error) {
		if err := r.ExpectTag(serial.TagMarkovStoredWord); err != nil {
			return storedWord{}, err
		}
		text, err := r.String()
		if err != nil {
			return storedWord{}, err
		}
		flags, err := r.U8()
		if err != nil {
			return storedWord{}, err
		}
		return storedWord{Text: text, Flags: flags}, nil
	})
	if err != nil {
		return nil, err
	}
	wordIndex, err := serial.ReadStringMap(r, (*serial.Reader).U64)
	if err != nil {
		return nil, err
	}
	table, err := serial.ReadU64Map(r, func(r *serial.Reader) (*wordList, error) {
		if err := r.ExpectTag(serial.TagMarkovWordList); err != nil {
			return nil, err
		}
		total, err := r.U64()
		if err != nil {
			return nil, err
		}
		refs, err := serial.ReadSeq(r, func(r *serial.Reader) (wordRef, error) {
			if err := r.ExpectTag(serial.TagMarkovWord); err != nil {
				return wordRef{}, err
			}
			idx, err := r.U64()
			if err != nil {
				return wordRef{}, err
			}
			freq, err := r.U64()
			if err != nil {
				return wordRef{}, err
			}
			return wordRef{Index: idx, Frequency: freq}, nil
		})
		if err != nil {
			return nil, err
		}
		wl := newWordList()
		wl.Total = total
		wl.Words = refs
		for i, ref := range refs {
			wl.indexMap[ref.Index] = i
		}
		return wl, nil
	})
	if err != nil {
		return nil, err
	}
	if len(words) < 2 {
		words = newModel().words
	}
	return &model{words: words, wordIndex: wordIndex, table: table}, nil
}
