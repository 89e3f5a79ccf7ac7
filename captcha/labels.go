package captcha

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/corona10/goimagehash"
)

// Hashes of the image-drop icons seen so far, 16 hex digits of a 64 bit DCT hash.
var knownIcons = map[string]string{
	"cc6c3193cec65c39": "star",
	"ccc6713993e664cc": "bulb",
	"9ad9657131c6d632": "flower",
	"c36938966c93d36c": "magnet",
	"9339398e6ce4e68c": "castle",
	"cccc333336cccc33": "fork",
	"cf65389bc78e3830": "apple",
	"8b982c63a69ecb69": "sun",
	"cbd9313232c6ce99": "cherry",
	"964f69b49443db58": "bicycle",
	"98d3673c646c9ac6": "pencils",
	"cf4d30c2cd92b339": "keys",
	"926d6493d96c3699": "scissors",
	"d8c9a736c89c2e63": "pirate flag",
	"cfcb3034c3938ecc": "orange",
	"cc2833c7ce999966": "raindrop",
	"9b3964c6ce3991b1": "cloud",
	"cec630393363cec6": "balloon",
	"c4313bcec531ce66": "crown",
	"c93332cc6733339c": "candle",
	"c5391ac76f64903b": "laptop",
	"c6ce3931c661c6ce": "book",
	"9293696ec7859c63": "fried egg",
	"e4999b66646d6499": "top hat",
	"91b66a4995b668d9": "glasses",
	"cbc66c3892e3cccc": "dice",
	"cc9c3363cc9c7163": "planet",
	"cc6c33936c6c9a39": "bell",
	"9696314d4c79b396": "carrot",
	"909a6f65909ac7e3": "gamepad",
	"c766388c6399ce66": "moon",
	"8c8e7331c5cf26cc": "globe",
	"cbc63c383322cdcd": "doughnut",
	"8e93696c33939696": "tree",
	"c3cb3c34c3cb9c2c": "rainbow",
	"cc3333cc66669966": "bottle",
	"cccc333132c7d31b": "ice cream",
	"999b6664339b88ce": "paintbrush",
	"869b3964339bce2c": "hamburger",
	"cfc7303882c7cd3a": "heart",
	"92366dc93266cd39": "banana",
	"c43d37c3584e7073": "guitar",
	"9a666599c3649e66": "mug",
	"c36d3c92c3cd3c92": "sailing",
}

// LabelTable is read-only once built and safe to share between solvers.
type LabelTable struct {
	labels map[uint64]string
	hashes []*goimagehash.ImageHash
}

func NewLabelTable(entries map[string]string) (*LabelTable, error) {
	table := &LabelTable{
		labels: make(map[uint64]string, len(entries)),
		hashes: make([]*goimagehash.ImageHash, 0, len(entries)),
	}

	for hex, label := range entries {
		h, err := strconv.ParseUint(hex, 16, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid icon hash %q - %s", hex, err)
		}
		if _, dup := table.labels[h]; dup {
			return nil, fmt.Errorf("duplicate icon hash %q", hex)
		}
		table.labels[h] = label
		table.hashes = append(table.hashes, goimagehash.NewImageHash(h, goimagehash.PHash))
	}

	// nearest-match ties resolve the same way on every run
	sort.Slice(table.hashes, func(i, j int) bool {
		return table.hashes[i].GetHash() < table.hashes[j].GetHash()
	})
	return table, nil
}

// DefaultLabels returns a fresh table of the known icons.
func DefaultLabels() *LabelTable {
	table, err := NewLabelTable(knownIcons)
	if err != nil {
		panic(err)
	}
	return table
}

func (t *LabelTable) Len() int {
	return len(t.labels)
}

// Lookup tries an exact match first, then the closest hash within maxDistance bits.
func (t *LabelTable) Lookup(hash *goimagehash.ImageHash, maxDistance int) (string, int, bool) {
	if label, ok := t.labels[hash.GetHash()]; ok {
		return label, 0, true
	}

	best, bestDistance := "", maxDistance+1
	for _, known := range t.hashes {
		d, err := hash.Distance(known)
		if err != nil {
			continue
		}
		if d < bestDistance {
			best, bestDistance = t.labels[known.GetHash()], d
		}
	}

	if best == "" {
		return "", 0, false
	}
	return best, bestDistance, true
}
