package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/japaniel/sieve/pkg/analyzer"
	"github.com/japaniel/sieve/pkg/db"
	"github.com/japaniel/sieve/pkg/ingest"
	"github.com/japaniel/sieve/pkg/store"
)

func cmdLookup(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("lookup", flag.ContinueOnError)
	source := fs.String("source", "cli", "Where the word was looked up")
	failed := fs.Bool("failed", false, "Record the lookup as unsuccessful")
	rest, err := subFlags(fs, args, 1)
	if err != nil {
		return err
	}
	word := joinArgs(rest)
	ok, err := a.store.RecordLookup(ctx, store.LookupInput{
		Word:     word,
		Language: a.language(),
		Source:   *source,
		Success:  !*failed,
	})
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(a.out, "lookup of %q already recorded\n", word)
		return nil
	}
	fmt.Fprintf(a.out, "recorded lookup of %q (looked up on %s days)\n",
		word, stat(a.store.CountLemmaLookups(ctx, word, a.language())))
	return nil
}

func cmdNote(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("note", flag.ContinueOnError)
	sentence := fs.String("sentence", "", "Sentence the word appeared in")
	definition := fs.String("definition", "", "Definition put on the card")
	tags := fs.String("tags", "", "Space separated card tags")
	failed := fs.Bool("failed", false, "Record the card as not created")
	rest, err := subFlags(fs, args, 1)
	if err != nil {
		return err
	}
	word := joinArgs(rest)
	err = a.store.RecordNote(ctx, db.Note{
		Word:       word,
		Sentence:   *sentence,
		Definition: *definition,
		Tags:       *tags,
		Success:    !*failed,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "recorded note for %q (%s today)\n", word, stat(a.store.CountNotesDay(ctx, time.Now())))
	return nil
}

func cmdImport(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	name := fs.String("name", "", "Content name (defaults to the title)")
	date := fs.String("date", "", "Content date as YYYY-MM-DD (defaults to today)")
	rest, err := subFlags(fs, args, 1)
	if err != nil {
		return err
	}
	when := time.Now()
	if *date != "" {
		if when, err = time.ParseInLocation(time.DateOnly, *date, time.Local); err != nil {
			return fmt.Errorf("%w: bad -date: %v", errUsage, err)
		}
	}

	doc, err := a.readSource(ctx, rest[0])
	if err != nil {
		return err
	}
	if *name == "" {
		*name = doc.Title
	}
	ok, err := a.store.ImportContent(ctx, *name, doc.Body, a.language(), when)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("content %q already exists for %s", *name, a.language())
	}
	fmt.Fprintf(a.out, "imported %q (%d chars)\n", *name, len(doc.Body))
	return nil
}

func cmdImportLookups(ctx context.Context, a *app, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	if _, err := os.Stat(args[0]); err != nil {
		return err
	}
	lookups, err := ingest.ReadKindleLookups(ctx, args[0], a.language())
	if err != nil {
		return err
	}
	n, err := a.store.ImportLookups(ctx, lookups)
	if err != nil {
		return err
	}
	a.cache.Invalidate()
	fmt.Fprintf(a.out, "imported %d of %d %s lookups\n", n, len(lookups), a.language())
	return nil
}

func cmdListContents(ctx context.Context, a *app, args []string) error {
	contents, err := a.store.ListContents(ctx, a.language())
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		fmt.Fprintf(a.out, "no content imported for %s\n", a.language())
		return nil
	}
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "name\tdate\tchars")
	for _, c := range contents {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Name, time.Unix(c.Date, 0).Format(time.DateOnly), len([]rune(c.Text)))
	}
	return tw.Flush()
}

func cmdDeleteContent(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	name := joinArgs(args)
	if err := a.store.DeleteContent(ctx, a.language(), name); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			return fmt.Errorf("no content named %q for %s", name, a.language())
		}
		return err
	}
	fmt.Fprintf(a.out, "deleted %q; run rebuild to update exposure counts\n", name)
	return nil
}

func cmdRebuild(ctx context.Context, a *app, args []string) error {
	err := a.store.RebuildSeen(ctx, func(current, total int) {
		fmt.Fprintf(a.out, "\rrebuilding exposure: %d/%d", current, total)
	})
	fmt.Fprintln(a.out)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, "exposure rebuilt")
	return nil
}

func cmdKnown(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("known", flag.ContinueOnError)
	onlyCognates := fs.Bool("cognates", false, "List only known cognates")
	if _, err := subFlags(fs, args, 0); err != nil {
		return err
	}
	words, cognates := a.tracker.KnownSet(ctx)
	if *onlyCognates {
		words = cognates
	}
	for _, w := range words {
		fmt.Fprintln(a.out, w)
	}
	return nil
}

func cmdStatus(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	s := a.tracker.Status(ctx, joinArgs(args))
	r := s.Record
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "lemma\t%s\n", s.Lemma)
	fmt.Fprintf(tw, "seen\t%d\n", r.Seen)
	fmt.Fprintf(tw, "lookups\t%d\n", r.Lookups)
	fmt.Fprintf(tw, "mature cards\t%d target, %d context\n", r.MatureTarget, r.MatureContext)
	fmt.Fprintf(tw, "young cards\t%d target, %d context\n", r.YoungTarget, r.YoungContext)
	fmt.Fprintf(tw, "score\t%d / %.0f\n", s.Score, s.Threshold*s.Modifier.Value)
	fmt.Fprintf(tw, "cognate\t%t\n", s.Cognate)
	fmt.Fprintf(tw, "override\t%s (%.2f)\n", s.Modifier.State, s.Modifier.Value)
	fmt.Fprintf(tw, "known\t%t\n", s.Known)
	return tw.Flush()
}

func cmdMark(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	s, err := a.tracker.Toggle(ctx, joinArgs(args))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s: override %s, known %t\n", s.Lemma, s.Modifier.State, s.Known)
	return nil
}

func cmdResetOverrides(ctx context.Context, a *app, args []string) error {
	if err := a.tracker.ResetOverrides(ctx); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "overrides for %s cleared\n", a.language())
	return nil
}

func cmdFilter(ctx context.Context, a *app, args []string) error {
	if len(args) == 0 {
		return errUsage
	}
	for _, w := range a.tracker.FilterUnknown(ctx, args) {
		fmt.Fprintln(a.out, w)
	}
	return nil
}

func cmdAnalyze(ctx context.Context, a *app, args []string) error {
	ac := a.cfg.Analyzer
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	rate := fs.Float64("rate", ac.LearningRate, "Share of 1T sentences studied per window")
	seed := fs.Uint64("seed", ac.Seed, "Simulation random seed")
	rest, err := subFlags(fs, args, 1)
	if err != nil {
		return err
	}
	if *rate < 0 || *rate > 1 {
		return fmt.Errorf("%w: -rate must be within [0, 1]", errUsage)
	}

	src, err := a.readSource(ctx, rest[0])
	if err != nil {
		return err
	}
	knownWords, _ := a.tracker.KnownSet(ctx)

	an, err := analyzer.New(a.language(), a.cfg.Language.Splitter, a.lem)
	if err != nil {
		return err
	}
	an.Workers = ac.Workers
	an.Logger = a.log.Named("analyzer")
	an.Metrics = a.metrics
	doc, err := an.Prepare(ctx, src.Body, knownWords)
	if err != nil {
		return err
	}

	r := doc.Report()
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "title\t%s\n", src.Title)
	fmt.Fprintf(tw, "verdict\t%s (%.1f%% 3T)\n", r.Verdict, 100*r.Tier3)
	fmt.Fprintf(tw, "size\t%d chars, %d words, %d sentences, %d chapters\n", r.Characters, r.Words, r.Sentences, r.Chapters)
	fmt.Fprintf(tw, "word length\t%.2f ± %.2f\n", r.WordLength.Mean, r.WordLength.Stdev)
	fmt.Fprintf(tw, "sentence length\t%.1f ± %.1f chars, %.1f ± %.1f words\n",
		r.SentenceChars.Mean, r.SentenceChars.Stdev, r.SentenceWords.Mean, r.SentenceWords.Stdev)
	fmt.Fprintf(tw, "unique lemmas / 3k\t%.0f ± %.0f\n", r.Unique3k.Mean, r.Unique3k.Stdev)
	fmt.Fprintf(tw, "unique lemmas / 10k\t%.0f ± %.0f\n", r.Unique10k.Mean, r.Unique10k.Stdev)
	fmt.Fprintf(tw, "lemmas\t%d (%d unique), unknown %d (%d unique)\n", r.Lemmas, r.UniqueLemmas, r.UnknownLemmas, r.UnknownUnique)
	fmt.Fprintf(tw, "sentences by tier\t0T %d, 1T %d, 2T %d, 3T %d\n", r.Tiers[0], r.Tiers[1], r.Tiers[2], r.Tiers[3])
	if err := tw.Flush(); err != nil {
		return err
	}

	curve := doc.WordCurve(ac.WordWindow, ac.WordStep)
	if n := len(curve); n > 0 {
		last := curve[n-1]
		fmt.Fprintf(a.out, "\nunknown words: %d in the last %d-word window, %d over the text\n",
			last.Unknown, ac.WordWindow, last.Cumulative)
	}

	sim := doc.Simulate(analyzer.SimulationOptions{LearningRate: *rate, Window: ac.SentenceWindow, Seed: *seed})
	fmt.Fprintf(a.out, "\nsimulated reading (rate %.2f, %d sentences per window):\n", *rate, ac.SentenceWindow)
	tw = tabwriter.NewWriter(a.out, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "start\t0T\t1T\t2T\t3T\tknown\t")
	for _, w := range sim.Windows {
		fmt.Fprintf(tw, "%d\t%.0f%%\t%.0f%%\t%.0f%%\t%.0f%%\t%d\t\n", w.Start,
			100*w.Fractions[0], 100*w.Fractions[1], 100*w.Fractions[2], 100*w.Fractions[3], w.Known)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "learned %d words along the way\n", len(sim.Learned))

	fmt.Fprintln(a.out, "\ncramming the most frequent unknown words of 3T sentences:")
	for _, c := range doc.Cram(nil) {
		fmt.Fprintf(a.out, "  %4d words: %d 3T sentences left (%.0f%% fewer, %.1f%% of the text)\n",
			c.Words, c.Remaining, 100*c.Dropped, 100*c.Share)
	}
	return nil
}

func cmdStats(ctx context.Context, a *app, args []string) error {
	lang := a.language()
	now := time.Now()
	seenTotal, seenDistinct := a.store.CountSeen(ctx, lang)

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "language\t%s\n", lang)
	fmt.Fprintf(tw, "lookups\t%s total, %s today\n",
		stat(a.store.CountLookups(ctx, lang)), stat(a.store.CountLookupsDay(ctx, now)))
	fmt.Fprintf(tw, "notes today\t%s\n", stat(a.store.CountNotesDay(ctx, now)))
	fmt.Fprintf(tw, "words seen\t%s tokens, %s lemmas\n", stat(seenTotal), stat(seenDistinct))

	if snap, err := a.cache.Get(ctx); err == nil {
		md := snap.Metadata
		fmt.Fprintf(tw, "flashcards\t%s: %d/%d mature, %d/%d young (target/context)\n",
			md.Flashcards, md.MatureTarget, md.MatureContext, md.YoungTarget, md.YoungContext)
	}
	knownWords, cognates := a.tracker.KnownSet(ctx)
	fmt.Fprintf(tw, "known\t%d lemmas (%d cognates)\n", len(knownWords), len(cognates))
	fmt.Fprintf(tw, "progress\t%.1f\n", a.tracker.Progress(ctx))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(a.out, "\nlookups per day:")
	for _, d := range a.store.LookupHistory(ctx, lang, 7) {
		fmt.Fprintf(a.out, "  %s  %d\n", d.Day.Format(time.DateOnly), d.Lemmas)
	}
	return nil
}

func stat(n int) string {
	if n == store.Unavailable {
		return "n/a"
	}
	return fmt.Sprint(n)
}

func cmdPurge(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("purge", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "Confirm deleting all recorded data")
	if _, err := subFlags(fs, args, 0); err != nil {
		return err
	}
	if !*yes {
		return fmt.Errorf("%w: purge deletes everything; pass -yes to confirm", errUsage)
	}
	if err := a.store.Purge(ctx); err != nil {
		return err
	}
	a.cache.Invalidate()
	fmt.Fprintln(a.out, "all data purged")
	return nil
}
