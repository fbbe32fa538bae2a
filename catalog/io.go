package catalog

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/file"
)

// ReadVariants loads a variant table in the index builder's .snp format: one
// variant per line, whitespace-separated
//
//	<id> <single|insertion|deletion> <contig> <pos> <data>
//
// Positions are offsets on the contig; pass base to rebase them onto a locus
// reference (locus-relative pos = pos - base). Lines for other contigs are
// skipped when contig is non-empty.
func ReadVariants(ctx context.Context, path, contig string, base int) ([]string, map[string]Variant, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	var ids []string
	vars := make(map[string]Variant)
	scanner := bufio.NewScanner(in.Reader(ctx))
	nLine := 0
	for scanner.Scan() {
		nLine++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 5 {
			return nil, nil, fmt.Errorf("%s:%d: expected 5 fields, got %d", path, nLine, len(fields))
		}
		id, kindStr, varContig, posStr, data := fields[0], fields[1], fields[2], fields[3], fields[4]
		if contig != "" && varContig != contig {
			continue
		}
		var kind Kind
		switch kindStr {
		case "single":
			kind = Single
		case "insertion":
			kind = Insertion
		case "deletion":
			kind = Deletion
		default:
			return nil, nil, fmt.Errorf("%s:%d: unknown variant kind %q", path, nLine, kindStr)
		}
		pos, err := strconv.Atoi(posStr)
		if err != nil {
			return nil, nil, fmt.Errorf("%s:%d: bad position %q", path, nLine, posStr)
		}
		if _, ok := vars[id]; ok {
			return nil, nil, fmt.Errorf("%s:%d: duplicate variant id %s", path, nLine, id)
		}
		ids = append(ids, id)
		vars[id] = Variant{Kind: kind, Pos: pos - base, Data: data}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return ids, vars, nil
}

// ReadLinkage loads a variant->alleles table in the index builder's .link
// format: one variant per line, the id followed by the names of the alleles
// carrying it.
func ReadLinkage(ctx context.Context, path string) (Linkage, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	links := make(Linkage)
	scanner := bufio.NewScanner(in.Reader(ctx))
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<24) // link lines can list thousands of alleles
	nLine := 0
	for scanner.Scan() {
		nLine++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s:%d: variant %s links no alleles", path, nLine, fields[0])
		}
		links[fields[0]] = append(links[fields[0]], fields[1:]...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return links, nil
}
