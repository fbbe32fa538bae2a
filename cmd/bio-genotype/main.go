package main

/*
bio-genotype types one or more genetic loci from a name-sorted alignment file:
it decodes each read against the locus variant catalog, corrects sequencing
errors against the pileup consensus, reconstructs per-read haplotype
signatures, and reports the allele-compatibility ranking per locus.

Example:

   bio-genotype -ref hla.fa -snp hla.snp -link hla.link \
       -locus 'A=A*01:01:01:01' -mode exon sample.name-sorted.bam
*/

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/file"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/bio/encoding/fasta"
	"github.com/grailbio/genotype/catalog"
	"github.com/grailbio/genotype/typing"
	"github.com/grailbio/hts/bam"
	"github.com/grailbio/hts/sam"
)

var (
	refPath   = flag.String("ref", "", "Reference FASTA with one backbone sequence per locus (required)")
	snpPath   = flag.String("snp", "", "Variant table (.snp) path (required)")
	linkPath  = flag.String("link", "", "Variant->allele linkage table (.link) path (required)")
	lociFlag  = flag.String("locus", "", "Comma-separated locus=backbone pairs, e.g. 'A=A*01:01:01:01' (required)")
	modeFlag  = flag.String("mode", "generic", "Typing mode: generic, exon, or tandem")
	editDist  = flag.Int("edit-dist", typing.DefaultOpts.EditDistance, "Reads with NM above this are skipped")
	allowDisc = flag.Bool("allow-discordant", false, "Admit discordant and unpaired alignments")
	noCorrect = flag.Bool("no-error-correction", false, "Disable pileup-consensus error correction")
	interDist = flag.Int("expected-inter-dist", 0, "Expected inter-mate gap for tandem-repeat loci")
	topN      = flag.Int("top", 10, "Number of ranked alleles to print per locus")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] name-sorted.bam\n", os.Args[0])
	flag.PrintDefaults()
}

func parseMode(s string) typing.Mode {
	switch s {
	case "generic":
		return typing.Generic
	case "exon":
		return typing.ExonRestricted
	case "tandem":
		return typing.TandemRepeat
	}
	log.Panicf("unknown -mode %q", s)
	return typing.Generic
}

func main() {
	shutdown := grail.Init()
	defer shutdown()
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() != 1 || *refPath == "" || *snpPath == "" || *linkPath == "" || *lociFlag == "" {
		usage()
		os.Exit(2)
	}
	ctx := vcontext.Background()
	mode := parseMode(*modeFlag)

	refIn, err := file.Open(ctx, *refPath)
	if err != nil {
		log.Fatalf("open %s: %v", *refPath, err)
	}
	ref, err := fasta.New(refIn.Reader(ctx))
	if err != nil {
		log.Fatalf("read %s: %v", *refPath, err)
	}
	if err := refIn.Close(ctx); err != nil {
		log.Fatalf("close %s: %v", *refPath, err)
	}

	links, err := catalog.ReadLinkage(ctx, *linkPath)
	if err != nil {
		log.Fatalf("read %s: %v", *linkPath, err)
	}

	opts := typing.DefaultOpts
	opts.EditDistance = *editDist
	opts.AllowDiscordant = *allowDisc
	opts.ErrorCorrection = !*noCorrect

	var loci []*typing.Locus
	backboneLocus := map[string]string{}
	for _, entry := range strings.Split(*lociFlag, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			log.Fatalf("bad -locus entry %q: want locus=backbone", entry)
		}
		name, backbone := parts[0], parts[1]
		n, err := ref.Len(backbone)
		if err != nil {
			log.Fatalf("locus %s: backbone %s not in %s: %v", name, backbone, *refPath, err)
		}
		seq, err := ref.Get(backbone, 0, n)
		if err != nil {
			log.Fatalf("locus %s: %v", name, err)
		}
		ids, vars, err := catalog.ReadVariants(ctx, *snpPath, backbone, 0)
		if err != nil {
			log.Fatalf("locus %s: %v", name, err)
		}
		backboneLocus[backbone] = name
		loci = append(loci, &typing.Locus{
			Name:              name,
			Mode:              mode,
			Ref:               []byte(seq),
			Alleles:           lociAlleles(links, ids, backbone),
			Catalog:           catalog.New(ids, vars),
			Links:             links,
			ExpectedInterDist: *interDist,
		})
	}

	reads, err := readsByBackbone(ctx, flag.Arg(0), backboneLocus)
	if err != nil {
		log.Fatalf("read %s: %v", flag.Arg(0), err)
	}

	for _, res := range typing.Run(loci, reads, opts) {
		if res.Err != nil {
			fmt.Printf("%s\tFAILED\t%v\n", res.Locus, res.Err)
			continue
		}
		fmt.Printf("%s\t%d reads\t%d fragments\n", res.Locus, res.Reads, res.Pairs)
		for i, ac := range res.RankedAlleles() {
			if i >= *topN {
				break
			}
			fmt.Printf("\t%d %s (count: %d)\n", i+1, ac.Allele, ac.Count)
		}
	}
}

// lociAlleles collects the allele pool for one locus: every allele the
// linkage mentions for the locus's variants, minus the backbone itself.
func lociAlleles(links catalog.Linkage, ids []string, backbone string) []string {
	set := map[string]bool{}
	for _, id := range ids {
		for _, a := range links[id] {
			if a != backbone {
				set[a] = true
			}
		}
	}
	alleles := make([]string, 0, len(set))
	for a := range set {
		alleles = append(alleles, a)
	}
	sort.Strings(alleles)
	return alleles
}

// readsByBackbone loads the name-sorted alignment file and groups records by
// locus (via the backbone contig each read aligned to). The stream must be
// fully materialized before typing starts; within a locus the name order is
// what fragments are grouped by.
func readsByBackbone(ctx context.Context, path string, backboneLocus map[string]string) (map[string][]*sam.Record, error) {
	in, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	defer in.Close(ctx) // nolint: errcheck
	r, err := bam.NewReader(in.Reader(ctx), 1)
	if err != nil {
		return nil, err
	}
	defer r.Close() // nolint: errcheck
	reads := map[string][]*sam.Record{}
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if rec.Ref == nil {
			continue
		}
		if locus, ok := backboneLocus[rec.Ref.Name()]; ok {
			reads[locus] = append(reads[locus], rec)
		}
	}
	return reads, nil
}
