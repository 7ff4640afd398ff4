package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Small utility for manually compressing or decompressing
 *		a file with the LZNT1 codec, for interop testing against
 *		other implementations.
 *
 * Usage:	lznt1cat [ options ] < input > output
 *
 *---------------------------------------------------------------*/

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/kf0trc/sonicbridge/link"
)

func main() {
	decompress := pflag.BoolP("decompress", "d", false, "Decompress stdin instead of compressing it")
	ceiling := pflag.Int("ceiling", link.DecompressCeiling, "Decompression output size ceiling, in bytes")
	help := pflag.Bool("help", false, "Display help text.")

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Compress or decompress stdin with LZNT1, writing to stdout.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	input, err := io.ReadAll(os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
		os.Exit(1)
	}

	if *decompress {
		out, err := link.DecompressLZNT1(input, *ceiling)
		if err != nil {
			fmt.Fprintf(os.Stderr, "decompress: %v\n", err)
			os.Exit(1)
		}

		os.Stdout.Write(out)

		return
	}

	os.Stdout.Write(link.CompressLZNT1(input))
}
