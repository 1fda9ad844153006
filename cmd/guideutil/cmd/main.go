// Package cmd implements the guideutil subcommands.
package cmd

import (
	"fmt"
	"log"
	"os"

	"github.com/genomix/crispor/guideindex"
	"github.com/genomix/crispor/ingest"
	"github.com/genomix/crispor/registry"
	"github.com/genomix/crispor/scan"
	"github.com/genomix/crispor/service"
	"github.com/grailbio/base/cmdutil"
	"v.io/x/lib/cmdline"
)

func newCmdBuild() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "build",
		Short:    "Build a binary guide index from text records",
		ArgsName: "input...",
	}
	speciesID := cmd.Flags.Uint("species-id", 0, "Species id stored in the index metadata")
	offset := cmd.Flags.Uint64("offset", 0, "Global id offset stored in the index metadata")
	species := cmd.Flags.String("species", "", "Species name stored in the index metadata")
	assembly := cmd.Flags.String("assembly", "", "Assembly name stored in the index metadata")
	out := cmd.Flags.String("out", "", "Output index path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("build requires at least one input path")
		}
		if *out == "" {
			return fmt.Errorf("build requires -out")
		}
		var meta guideindex.Metadata
		meta.SpeciesID = uint8(*speciesID)
		meta.Offset = *offset
		meta.SetSpeciesName(*species)
		meta.SetAssemblyName(*assembly)
		stats, err := guideindex.Build(argv, meta, *out)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "wrote %d records (%d skipped) to %s\n", stats.Written, stats.Skipped, *out)
		return nil
	})
	return cmd
}

func newCmdIngest() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "ingest",
		Short:    "Stream a FASTA genome into build-ready text records",
		ArgsName: "fasta-path",
	}
	pam := cmd.Flags.String("pam", "GGG", "Literal PAM sequence to match")
	speciesID := cmd.Flags.Uint("species-id", 0, "Species id stored in each emitted record")
	out := cmd.Flags.String("out", "", "Output records path")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("ingest takes one fasta path argument, but got %v", argv)
		}
		if *out == "" {
			return fmt.Errorf("ingest requires -out")
		}
		in, err := os.Open(argv[0])
		if err != nil {
			return err
		}
		defer in.Close() // nolint: errcheck
		outFile, err := os.Create(*out)
		if err != nil {
			return err
		}
		defer outFile.Close() // nolint: errcheck

		stats, err := ingest.Ingest(outFile, in, *pam, uint8(*speciesID))
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "ingested %d chromosomes, emitted %d records\n", stats.Chromosomes, stats.Records)
		return nil
	})
	return cmd
}

func newCmdSearch() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "search",
		Short:    "Exact-search a guide sequence against a loaded index",
		ArgsName: "index-path sequence",
	}
	pamRight := cmd.Flags.Int("pam-right", 1, "0 = PAM-left, 1 = PAM-right, 2 = PAM-agnostic")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("search takes index-path and sequence, but got %v", argv)
		}
		svc, err := singleSpeciesService(argv[0])
		if err != nil {
			return err
		}
		ids, err := svc.Search("index", argv[1], *pamRight)
		if err != nil {
			return err
		}
		for _, id := range ids {
			fmt.Fprintln(env.Stdout, id)
		}
		return nil
	})
	return cmd
}

func newCmdOffTargets() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "offtargets",
		Short:    "Off-target scan a guide sequence against a loaded index",
		ArgsName: "index-path sequence",
	}
	pamRight := cmd.Flags.Bool("pam-right", true, "Whether the PAM lies on the 3' side of sequence")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 2 {
			return fmt.Errorf("offtargets takes index-path and sequence, but got %v", argv)
		}
		svc, err := singleSpeciesService(argv[0])
		if err != nil {
			return err
		}
		result, err := svc.OffTargetsBySeq("index", argv[1], *pamRight)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "summary: %v\n", result.Summary)
		for _, id := range result.OffTargets {
			fmt.Fprintln(env.Stdout, id)
		}
		return nil
	})
	return cmd
}

func newCmdInspect() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "inspect",
		Short:    "Print a guide index's metadata, a clone of samtools-style flagstat summaries",
		ArgsName: "index-path",
	}
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 1 {
			return fmt.Errorf("inspect takes one index path, but got %v", argv)
		}
		store, err := guideindex.Load(argv[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Stdout, "species:   %s\n", store.Meta.SpeciesName())
		fmt.Fprintf(env.Stdout, "assembly:  %s\n", store.Meta.AssemblyName())
		fmt.Fprintf(env.Stdout, "num_seqs:  %d\n", store.Meta.NumSeqs)
		fmt.Fprintf(env.Stdout, "seq_len:   %d\n", store.Meta.SeqLength)
		fmt.Fprintf(env.Stdout, "offset:    %d\n", store.Meta.Offset)
		fmt.Fprintf(env.Stdout, "checksum:  %016x\n", guideindex.Checksum(store))
		return nil
	})
	return cmd
}

func singleSpeciesService(indexPath string) (*service.Service, error) {
	r := registry.New()
	if err := r.Load("index", indexPath); err != nil {
		return nil, err
	}
	return &service.Service{Registry: r, MaxOffs: scan.MaxOffs}, nil
}

// Run is the guideutil entry point.
func Run() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds | log.Lshortfile)
	cmdline.HideGlobalFlagsExcept()
	cmdline.Main(
		&cmdline.Command{
			Name:     "guideutil",
			Short:    "Tools for building and querying CRISPR guide indexes",
			LookPath: false,
			Children: []*cmdline.Command{
				newCmdBuild(),
				newCmdIngest(),
				newCmdSearch(),
				newCmdOffTargets(),
				newCmdInspect(),
			},
		})
}
