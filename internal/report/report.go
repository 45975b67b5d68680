// Package report prints benchmark results in the locale of the environment.
//
// Large rates are easier to read grouped ("12,345,678 loops/s"), so numbers
// are formatted for the language named by LC_ALL, LC_NUMERIC or LANG. The C
// and POSIX locales print plain digits.
package report

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/randomizedcoder/tscbench/internal/clock"
	"github.com/randomizedcoder/tscbench/internal/workload"
)

// Printer writes result lines to one writer.
type Printer struct {
	w io.Writer
	p *message.Printer // nil for the C locale
}

// New returns a Printer formatting numbers for tag. language.Und selects
// plain digits.
func New(w io.Writer, tag language.Tag) *Printer {
	pr := &Printer{w: w}
	if tag != language.Und {
		pr.p = message.NewPrinter(tag)
	}
	return pr
}

// LocaleFromEnv returns the numeric locale named by the environment,
// checking LC_ALL, LC_NUMERIC and LANG in that order.
func LocaleFromEnv() language.Tag {
	return localeFrom(os.Getenv)
}

func localeFrom(getenv func(string) string) language.Tag {
	for _, key := range []string{"LC_ALL", "LC_NUMERIC", "LANG"} {
		if v := getenv(key); v != "" {
			return ParseLocale(v)
		}
	}
	return language.Und
}

// ParseLocale converts a POSIX locale name such as "en_US.UTF-8" or
// "de_DE@euro" to a language tag. C, POSIX and unparsable names map to
// language.Und.
func ParseLocale(name string) language.Tag {
	if i := strings.IndexAny(name, ".@"); i >= 0 {
		name = name[:i]
	}
	if name == "" || name == "C" || name == "POSIX" {
		return language.Und
	}
	tag, err := language.Parse(strings.ReplaceAll(name, "_", "-"))
	if err != nil {
		return language.Und
	}
	return tag
}

func (pr *Printer) printf(format string, args ...any) error {
	var err error
	if pr.p != nil {
		_, err = pr.p.Fprintf(pr.w, format, args...)
	} else {
		_, err = fmt.Fprintf(pr.w, format, args...)
	}
	return err
}

// Rate prints one run result line:
//
//	low IPC (rdtscp) loops/s 1,234
//	High IPC (no rdtsc) loops/s 1,234
//	rdtsc calls/s 1,234
//
// skipped marks a run made with reads disabled; variant is still the
// mechanism that was selected.
func (pr *Printer) Rate(kind workload.Kind, variant clock.Variant, skipped bool, rate uint64) error {
	no := ""
	if skipped {
		no = "no "
	}
	switch kind {
	case workload.LowIPC:
		return pr.printf("low IPC (%s%s) loops/s %d\n", no, variant, rate)
	case workload.HighIPC:
		return pr.printf("High IPC (%s%s) loops/s %d\n", no, variant, rate)
	default:
		return pr.printf("%s calls/s %d\n", variant, rate)
	}
}

// Ratio prints the comparison line, "ratio 0.97".
func (pr *Printer) Ratio(ratio float64) error {
	return pr.printf("ratio %.2f\n", ratio)
}
