package main

/*------------------------------------------------------------------
 *
 * Purpose:   	Main program for the acoustic link session.
 *
 * Description:	Attaches to a sound card and runs the
 *		chunking/reassembly/retransmission session loop against
 *		an application pipeline.
 *
 * Usage:	sonicbridge [ options ]
 *
 *		See the "Usage" function below for details.
 *
 *---------------------------------------------------------------*/

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/kf0trc/sonicbridge/link"
)

func main() {
	var (
		inputDevice  = pflag.Int("input-device", -1, "Input sound card device index (-1 for system default)")
		outputDevice = pflag.Int("output-device", -1, "Output sound card device index (-1 for system default)")
		volume       = pflag.Int("volume", 50, "Transmit volume, 0-100")
		protocolID   = pflag.Int("protocol", 1, "Modem protocol id tag placed on every encoded block")
		list         = pflag.Bool("list", false, "List available sound card devices and exit")
		pttChip      = pflag.String("ptt-chip", "", "gpiod chip for PTT keying, e.g. gpiochip0. Empty disables PTT.")
		pttLine      = pflag.Int("ptt-line", -1, "gpiod line offset for PTT keying")
		configPath   = pflag.String("config", "", "YAML config file overriding transport tunables")
		logDir       = pflag.String("log-dir", "", "Directory for daily-rotated CSV session logs. Empty disables logging.")
		help         = pflag.Bool("help", false, "Display help text.")
	)

	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "%s - Acoustic JSON-over-audio link session.\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}

	if *list {
		devices, err := link.ListDevices()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list audio devices: %v\n", err)
			os.Exit(1)
		}

		for _, d := range devices {
			marker := ""
			if d.IsDefaultIn {
				marker += " [default in]"
			}
			if d.IsDefaultOut {
				marker += " [default out]"
			}

			fmt.Printf("%3d  %-40s  in=%d out=%d%s\n", d.Index, d.Name, d.MaxInputChans, d.MaxOutputChans, marker)
		}

		os.Exit(0)
	}

	cfg, err := link.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	logger := link.NewLogger(os.Stderr)

	audio, err := link.OpenPortAudioIO(*inputDevice, *outputDevice)
	if err != nil {
		logger.Fatal("failed to open audio devices", "err", err)
	}
	defer audio.Close()

	modem := link.NewAudioModem(audio)

	var ptt link.PTTController = link.NullPTT{}
	if *pttChip != "" && *pttLine >= 0 {
		gpioPTT, err := link.OpenGPIOPTT(*pttChip, *pttLine)
		if err != nil {
			logger.Fatal("failed to open ptt line", "err", err)
		}

		ptt = gpioPTT
		defer ptt.Close()
	}

	session := link.NewSession(cfg, logger, modem, link.EchoPipeline{})
	session.PTT = ptt
	session.ProtocolID = *protocolID
	session.Volume = *volume
	session.Log = link.NewSessionLog(*logDir)
	defer session.Log.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		logger.Info("shutting down")
		cancel()
	}()

	if err := session.Run(ctx); err != nil {
		logger.Fatal("session terminated", "err", err)
	}
}
