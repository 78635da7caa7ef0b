// Package markov implements the variable-order text generation engine.
//
// The model is trained on-line from chat messages by a single worker
// goroutine fed through a bounded queue, and can be retrained from the
// persisted message log. Generation samples successors weighted by observed
// frequency, preferring shorter prefixes by a fixed distribution.
package markov

import (
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode"
	"unicode/utf8"

	"src.ikura.sh/pkg/logutil"
	"src.ikura.sh/pkg/serial"
)

var logger = logutil.GetLogger("[markov] ")

// Training parameters.
const (
	minInputLength  = 2
	goodInputLength = 6
	discardChance   = 0.80
	maxPrefixLength = 3

	maxOutputLength = 50
)

// Weights of the prefix lengths 1..3 used during generation.
var prefixLengthWeights = []float64{0.55, 0.30, 0.15}

// Config holds the generation knobs supplied by the configuration file.
type Config struct {
	MinLength  int
	MaxRetries int
	StripPings bool
}

// Span marks a byte range of a message that a backend identified as an
// emote.
type Span struct {
	Begin, End int
}

// Input is one message to train on.
type Input struct {
	Text   string
	Emotes []Span
}

// Token is one word of a generated message.
type Token struct {
	Text    string
	IsEmote bool
}

type queueItem struct {
	input      Input
	retraining bool
	stop       bool
}

// DB is a Markov model plus its ingest worker. The model itself sits
// behind its own readers-writer lock, separate from the database lock.
type DB struct {
	mu  sync.RWMutex
	m   *model
	cfg Config

	rngMu sync.Mutex
	rng   *rand.Rand

	queue chan queueItem
	done  chan struct{}

	retrainTotal uint64
	retrainDone  uint64

	// test hooks; production code leaves these at the package constants
	minInput int
	discard  float64
}

// New returns a DB with an empty model. Start must be called before
// Process.
func New(cfg Config) *DB {
	if cfg.MinLength <= 0 {
		cfg.MinLength = 1
	}
	return &DB{
		m:        newModel(),
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
		queue:    make(chan queueItem, 512),
		done:     make(chan struct{}),
		minInput: minInputLength,
		discard:  discardChance,
	}
}

// Start launches the ingest worker.
func (d *DB) Start() {
	go d.worker()
}

// Shutdown stops the ingest worker after it drains the queue.
func (d *DB) Shutdown() {
	d.queue <- queueItem{stop: true}
	<-d.done
}

// Process queues one message for training. It blocks only when the queue
// is full.
func (d *DB) Process(text string, emotes []Span) {
	d.queue <- queueItem{input: Input{Text: text, Emotes: emotes}}
}

// Retrain clears the model and replays the given messages through the
// ingest queue. Progress is observable through RetrainProgress.
func (d *DB) Retrain(inputs []Input) {
	d.mu.Lock()
	d.m = newModel()
	d.mu.Unlock()

	atomic.StoreUint64(&d.retrainDone, 0)
	atomic.StoreUint64(&d.retrainTotal, uint64(len(inputs)))
	go func() {
		for _, input := range inputs {
			d.queue <- queueItem{input: input, retraining: true}
		}
	}()
}

// RetrainProgress returns how many of the queued retraining messages have
// been processed.
func (d *DB) RetrainProgress() (done, total uint64) {
	return atomic.LoadUint64(&d.retrainDone), atomic.LoadUint64(&d.retrainTotal)
}

func (d *DB) worker() {
	defer close(d.done)
	for item := range d.queue {
		if item.stop {
			logger.Printf("worker thread exited")
			return
		}
		d.processOne(item.input)
		if item.retraining {
			atomic.AddUint64(&d.retrainDone, 1)
		}
	}
}

func (d *DB) randFloat() float64 {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return d.rng.Float64()
}

func (d *DB) randInt(n uint64) uint64 {
	d.rngMu.Lock()
	defer d.rngMu.Unlock()
	return uint64(d.rng.Int63n(int64(n)))
}

type splitWord struct {
	text  string
	emote bool
}

// Unicode categories dropped wholesale during splitting.
var droppedRanges = []*unicode.RangeTable{
	unicode.Mn, unicode.Mc, unicode.Me, unicode.Zl, unicode.Zp,
	unicode.Cc, unicode.Cf, unicode.Cs, unicode.Co, unicode.So,
}

func droppedRune(r rune) bool {
	if unicode.In(r, droppedRanges...) {
		return true
	}
	// Unassigned codepoints (category Cn) have no table of their own.
	return !unicode.In(r, unicode.L, unicode.M, unicode.N, unicode.P,
		unicode.S, unicode.Z, unicode.C)
}

func isSplitPunct(b byte) bool {
	return b == '.' || b == ',' || b == '!' || b == '?'
}

// splitMessage splits a message into words. Whitespace separates; a run of
// '.,!?' directly before whitespace or the end becomes its own word; emote
// spans become single emote words regardless of their content.
func splitMessage(text string, emotes []Span) []splitWord {
	var words []splitWord
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			words = append(words, splitWord{text: current.String()})
			current.Reset()
		}
	}

	i := 0
	for i < len(text) {
		if span, ok := spanAt(emotes, i); ok && span.End > i {
			flush()
			words = append(words, splitWord{text: text[span.Begin:span.End], emote: true})
			i = span.End
			continue
		}

		r, size := utf8.DecodeRuneInString(text[i:])
		switch {
		case unicode.IsSpace(r):
			flush()
			i += size

		case size == 1 && isSplitPunct(text[i]):
			end := i
			for end < len(text) && isSplitPunct(text[end]) {
				end++
			}
			next, _ := utf8.DecodeRuneInString(text[end:])
			if end == len(text) || unicode.IsSpace(next) {
				flush()
				words = append(words, splitWord{text: text[i:end]})
				i = end
			} else {
				current.WriteByte(text[i])
				i++
			}

		case droppedRune(r):
			i += size

		default:
			current.WriteRune(r)
			i += size
		}
	}
	flush()
	return words
}

func spanAt(emotes []Span, pos int) (Span, bool) {
	for _, span := range emotes {
		if span.Begin == pos {
			return span, true
		}
	}
	return Span{}, false
}

// processOne trains the model on a single message.
func (d *DB) processOne(input Input) {
	words := splitMessage(strings.TrimSpace(input.Text), input.Emotes)
	if len(words) < d.minInput {
		return
	}
	if len(words) < goodInputLength && d.randFloat() < d.discard {
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	arr := make([]uint64, 0, len(words)+2)
	arr = append(arr, idxStart)
	for _, word := range words {
		var flags uint8
		if word.emote {
			flags |= FlagEmote
		}
		arr = append(arr, d.m.wordIndexOf(word.text, flags))
	}
	arr = append(arr, idxEnd)

	for i := 0; i < len(arr); i++ {
		for k := 1; k <= maxPrefixLength && i+k < len(arr); k++ {
			wl, ok := d.m.table[hashPrefix(arr[i:i+k])]
			if !ok {
				wl = newWordList()
				d.m.table[hashPrefix(arr[i:i+k])] = wl
			}
			wl.increment(arr[i+k])
		}
	}
}

func (d *DB) samplePrefixLength() int {
	x := d.randFloat()
	for i, w := range prefixLengthWeights {
		if x < w {
			return i + 1
		}
		x -= w
	}
	return len(prefixLengthWeights)
}

// generateOne picks the next word given the output so far, backing off to
// shorter prefixes when the sampled one has no successors.
func (d *DB) generateOne(output []uint64) uint64 {
	length := d.samplePrefixLength()
	if length > len(output) {
		length = len(output)
	}
	prefix := output[len(output)-length:]

	for len(prefix) > 0 {
		if wl, ok := d.m.table[hashPrefix(prefix)]; ok && wl.Total > 0 {
			pick := d.randInt(wl.Total)
			for _, ref := range wl.Words {
				if ref.Frequency > pick {
					return ref.Index
				}
				pick -= ref.Frequency
			}
		}
		prefix = prefix[1:]
	}
	return idxEnd
}

// Generate produces a message from the model, optionally seeded with
// words; the seed words begin the result. The result is empty when the
// model has nothing to say.
func (d *DB) Generate(seed []string) []Token {
	for retry := 0; ; retry++ {
		tokens := d.generateAttempt(seed)
		if len(tokens) >= d.cfg.MinLength || retry >= d.cfg.MaxRetries {
			return tokens
		}
	}
}

func (d *DB) generateAttempt(seed []string) []Token {
	d.mu.RLock()
	defer d.mu.RUnlock()

	output := []uint64{idxStart}
	for _, word := range seed {
		if idx, ok := d.m.wordIndex[word]; ok {
			output = append(output, idx)
		}
	}

	for len(output) < maxOutputLength {
		next := d.generateOne(output)
		if next == idxEnd {
			break
		}
		output = append(output, next)
	}

	var tokens []Token
	for _, idx := range output[1:] {
		word := d.m.words[idx]
		text := word.Text
		if d.cfg.StripPings {
			text = strings.TrimPrefix(text, "@")
		}
		if text == "" {
			continue
		}
		tokens = append(tokens, Token{Text: text, IsEmote: word.Flags&FlagEmote != 0})
	}
	return tokens
}

// Render joins tokens into a plain string. Single-character punctuation
// attaches to the previous token with no space before it.
func Render(tokens []Token) string {
	var sb strings.Builder
	for i, tok := range tokens {
		if i > 0 && !(len(tok.Text) == 1 && isSplitPunct(tok.Text[0])) {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok.Text)
	}
	return sb.String()
}

// Serialize writes the model under the read lock.
func (d *DB) Serialize(w *serial.Writer) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	d.m.serialize(w)
}

// LoadFrom replaces the model with one decoded from the reader.
func (d *DB) LoadFrom(r *serial.Reader) error {
	m, err := readModel(r)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.m = m
	d.mu.Unlock()
	return nil
}
