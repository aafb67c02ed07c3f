package tiffengine

import "regexp"

// ImageKind classifies one entry of an IFD chain by document convention
// (spec.md 6): the first IFD is always the base (full-resolution) image;
// later entries are classified from their ImageDescription text.
type ImageKind int

const (
	ImageKindBase ImageKind = iota
	ImageKindLabel
	ImageKindMacro
	ImageKindOrdinary
)

func (k ImageKind) String() string {
	switch k {
	case ImageKindBase:
		return "base"
	case ImageKindLabel:
		return "label"
	case ImageKindMacro:
		return "macro"
	default:
		return "ordinary"
	}
}

var (
	labelPattern = regexp.MustCompile(`(?i)\blabel\b`)
	macroPattern = regexp.MustCompile(`(?i)\bmacro\b`)
)

// ClassifyImageKind applies spec.md 6's image-kind heuristic to one image
// of a chain: index 0 is always base; later images are label/macro if
// their ImageDescription (tag 270) matches the corresponding case-insensitive
// whole-word regex, else ordinary. Thumbnail detection is format-specific
// and out of scope (spec.md 6's own non-goal).
func ClassifyImageKind(index int, ifd *IFD) ImageKind {
	if index == 0 {
		return ImageKindBase
	}
	v, ok := ifd.Get(TagImageDescription)
	if !ok {
		return ImageKindOrdinary
	}
	desc := v.AsString()
	switch {
	case labelPattern.MatchString(desc):
		return ImageKindLabel
	case macroPattern.MatchString(desc):
		return ImageKindMacro
	default:
		return ImageKindOrdinary
	}
}

// ClassifyChain classifies every image in engine's IFD chain, in order.
func ClassifyChain(engine *FileEngine) []ImageKind {
	images := engine.Images()
	kinds := make([]ImageKind, len(images))
	for i, ifd := range images {
		kinds[i] = ClassifyImageKind(i, ifd)
	}
	return kinds
}
