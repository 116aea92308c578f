package scan

import (
	"sort"
	"strings"

	"github.com/sells-group/reinvest-cli/internal/model"
	"github.com/sells-group/reinvest-cli/internal/pdftext"
)

// DefaultRelevance marks blocks that belong to an equity section even when
// the value keyword wrapped onto another block.
var DefaultRelevance = []string{"equity", "shareholders", "balance sheet", "financial position", "reserves"}

// BlockScan is the result of scanning relevant layout blocks.
type BlockScan struct {
	Candidates []model.Candidate
	Pages      []int // distinct pages of the scanned blocks, most relevant first
}

type rankedBlock struct {
	block   pdftext.Block
	keyword bool
	rank    int // index of the most recent target year in the block; len(years) when none
	order   int
}

// ScanBlocks keeps the blocks mentioning a keyword or a relevance term,
// orders them by the most recent target year they mention and scans them as
// one text. Each candidate carries the page of the block it came from.
func (s *Scanner) ScanBlocks(blocks []pdftext.Block, relevance []string) BlockScan {
	if relevance == nil {
		relevance = DefaultRelevance
	}

	var kept []rankedBlock
	for i, b := range blocks {
		kw := pdftext.ContainsAny(b.Text, s.opts.Keywords)
		if !kw && !pdftext.ContainsAny(b.Text, relevance) {
			continue
		}
		kept = append(kept, rankedBlock{block: b, keyword: kw, rank: s.yearRank(b.Text), order: i})
	}
	if len(kept) == 0 {
		return BlockScan{}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].rank != kept[j].rank {
			return kept[i].rank < kept[j].rank
		}
		return kept[i].order < kept[j].order
	})

	var (
		sb     strings.Builder
		starts = make([]int, len(kept))
	)
	for i, rb := range kept {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		starts[i] = sb.Len()
		sb.WriteString(rb.block.Text)
	}

	cands := s.Scan(sb.String())
	for i := range cands {
		idx := sort.Search(len(starts), func(k int) bool { return starts[k] > cands[i].Position }) - 1
		if idx >= 0 {
			cands[i].Page = kept[idx].block.Page
		}
	}

	return BlockScan{Candidates: cands, Pages: rankedPages(kept)}
}

// yearRank returns the priority index of the first target year found in text.
func (s *Scanner) yearRank(text string) int {
	for i, ym := range s.years {
		if ym.forms[len(ym.forms)-1].MatchString(text) {
			return i
		}
	}
	return len(s.years)
}

func rankedPages(kept []rankedBlock) []int {
	seen := make(map[int]bool)
	var pages []int
	add := func(keyword bool) {
		for _, rb := range kept {
			if rb.keyword == keyword && !seen[rb.block.Page] {
				seen[rb.block.Page] = true
				pages = append(pages, rb.block.Page)
			}
		}
	}
	add(true)
	add(false)
	return pages
}
