// Command xdm is a dev CLI for xautodm maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"

	"xautodm/internal/app"
	"xautodm/internal/config"
	"xautodm/internal/logging"
	"xautodm/internal/session"
	"xautodm/internal/store"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "extract":
		if len(os.Args) < 3 {
			fmt.Println("Usage: xdm extract <handle>")
			os.Exit(1)
		}
		runExtract(os.Args[2])
	case "send":
		runSend()
	case "launch-chrome":
		runLaunchChrome()
	case "bot-test":
		runBotTest()
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: xdm open <config|data>")
			os.Exit(1)
		}
		runOpen(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: xdm <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  extract <handle>  Extract followers of <handle> into the roster")
	fmt.Println("  send              Run one send batch over eligible roster entries")
	fmt.Println("  launch-chrome     Launch a debuggable browser for manual login")
	fmt.Println("  bot-test          Open bot.sannysoft.com to audit browser fingerprint")
	fmt.Println("  open config       Open config file in default editor")
	fmt.Println("  open data         Open data directory in file explorer")
}

// newService builds the same service the GUI uses, logging to stderr.
func newService() (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.Logging.Level, nil)
	dataDir, err := config.DataDir()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(filepath.Join(dataDir, "roster.db"))
	if err != nil {
		return nil, err
	}

	svc := app.New(cfg, st, logging.NewBuffer(100), logger)
	if err := svc.Startup(context.Background()); err != nil {
		return nil, err
	}
	return svc, nil
}

func runExtract(handle string) {
	svc, err := newService()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer svc.Shutdown()

	res, err := svc.ExtractFollowers(handle, "", nil, false)
	if err != nil {
		log.Fatalf("Extraction failed: %v", err)
	}
	fmt.Printf("Found %d users: %d added, %d already known\n",
		res.Found, res.Added, res.Skipped)
	if res.CSVPath != "" {
		fmt.Printf("Snapshot written to %s\n", res.CSVPath)
	}
}

func runSend() {
	svc, err := newService()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer svc.Shutdown()

	if err := svc.SendBatch(); err != nil {
		log.Fatalf("Send batch failed to start: %v", err)
	}
	fmt.Println("Send batch running. Press Enter to stop...")
	fmt.Scanln()
	svc.StopSend()
}

func runLaunchChrome() {
	svc, err := newService()
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer svc.Shutdown()

	execPath, err := svc.LaunchBrowser()
	if err != nil {
		log.Fatalf("Failed to launch browser: %v", err)
	}
	fmt.Printf("Launched %s. Log in to x.com in the opened window.\n", execPath)
}

func runBotTest() {
	log.Println("Opening bot.sannysoft.com with stealth browser options...")

	opts := session.Options(false) // non-headless so you can see it

	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	defer cancel()

	ctx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	go func() {
		err := chromedp.Run(ctx,
			chromedp.Navigate("https://bot.sannysoft.com"),
		)
		if err != nil {
			log.Printf("Failed to navigate: %v", err)
		}
	}()

	fmt.Println("Press Enter to end program...")
	fmt.Scanln()

	log.Println("Done.")
}

func runOpen(target string) {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "data":
		path, err = config.DataDir()
	default:
		fmt.Printf("Unknown target: %s\n", target)
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Failed to get path: %v", err)
	}

	if err := browser.OpenFile(path); err != nil {
		log.Fatalf("Failed to open: %v", err)
	}
}
