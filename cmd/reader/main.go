package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/kirillkom/scanread/internal/bootstrap"
	"github.com/kirillkom/scanread/internal/config"
	"github.com/kirillkom/scanread/internal/core/domain"
	"github.com/kirillkom/scanread/internal/core/ports"
	"github.com/kirillkom/scanread/internal/observability/logging"
)

const usage = `usage: reader [-config path] <command> [args]

commands:
  open   <file.pdf>                     register a document, restore session state
  ocr    <file.pdf> <page> [-force]     recognize one page (1-based) and print its text
  stage  <file.pdf> <page> <stage>      run punctuate|vernacular|explain, streaming to stdout
  export <file.pdf> <out.xlsx>          write annotated pages to a review workbook
`

func main() {
	configPath := flag.String("config", "reader.yaml", "path to the config file")
	flag.Parse()
	if flag.NArg() < 1 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	bootLog := logging.NewJSONLogger("reader", "info")
	manager, err := config.Load(*configPath, bootLog)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	cfg := manager.Current()
	logger := logging.NewJSONLogger("reader", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, manager, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", app.Metrics.Handler())
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Warn("metrics_server_stopped", "error", err)
			}
		}()
	}

	if err := run(ctx, app, flag.Args()); err != nil {
		log.Fatalf("%s: %v", flag.Arg(0), err)
	}
}

func run(ctx context.Context, app *bootstrap.App, args []string) error {
	switch args[0] {
	case "open":
		if len(args) != 2 {
			return fmt.Errorf("open wants a file path")
		}
		return openDocument(ctx, app, args[1])
	case "ocr":
		if len(args) < 3 {
			return fmt.Errorf("ocr wants a file path and a page number")
		}
		force := len(args) > 3 && args[3] == "-force"
		return ocrPage(ctx, app, args[1], args[2], force)
	case "stage":
		if len(args) != 4 {
			return fmt.Errorf("stage wants a file path, a page number, and a stage name")
		}
		return runStage(ctx, app, args[1], args[2], args[3])
	case "export":
		if len(args) != 3 {
			return fmt.Errorf("export wants a file path and an output path")
		}
		return exportWorkbook(ctx, app, args[1], args[2])
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func openDocument(ctx context.Context, app *bootstrap.App, path string) error {
	doc, err := app.Describer.Describe(ctx, path)
	if err != nil {
		return err
	}
	if prior, err := app.State.Get(ctx, doc.ID); err == nil {
		doc.LastPage = prior.LastPage
		doc.Zoom = prior.Zoom
		doc.OpenedAt = prior.OpenedAt
	} else if !domain.IsKind(err, domain.ErrDocumentNotFound) {
		return err
	}
	if err := app.State.Upsert(ctx, doc); err != nil {
		return err
	}
	app.Config.RememberSession(path, doc.LastPage)

	fmt.Printf("%s\n  pages: %d\n  last page: %d\n", doc.ID, doc.PageCount, doc.LastPage+1)
	return nil
}

func ocrPage(ctx context.Context, app *bootstrap.App, path, pageArg string, force bool) error {
	doc, pageIndex, err := resolvePage(ctx, app, path, pageArg)
	if err != nil {
		return err
	}
	annotation, err := app.AnnotateUC.Annotate(ctx, doc, pageIndex, force)
	if err != nil {
		return err
	}
	app.Config.RememberSession(path, pageIndex)

	fmt.Printf("page %s (%s, %d regions)\n", pageArg, annotation.Orientation, len(annotation.Regions))
	for _, region := range annotation.Regions {
		if region.EditState == domain.EditStateUserDeleted {
			continue
		}
		fmt.Println(region.Text)
	}
	return nil
}

func runStage(ctx context.Context, app *bootstrap.App, path, pageArg, stageArg string) error {
	doc, pageIndex, err := resolvePage(ctx, app, path, pageArg)
	if err != nil {
		return err
	}
	stage := domain.Stage(stageArg)
	switch stage {
	case domain.StagePunctuate, domain.StageVernacular, domain.StageExplain:
	default:
		return fmt.Errorf("unknown stage %q", stageArg)
	}

	task, err := app.StageUC.Run(ctx, doc, pageIndex, stage, func(event ports.StreamEvent) {
		if event.Done {
			fmt.Println()
			return
		}
		fmt.Print(event.Delta)
	})
	if err != nil {
		return err
	}

	select {
	case <-task.Done():
	case <-ctx.Done():
		task.Cancel()
		<-task.Done()
	}
	_, err = task.Result()
	return err
}

func exportWorkbook(ctx context.Context, app *bootstrap.App, path, outPath string) error {
	doc, err := app.Describer.Describe(ctx, path)
	if err != nil {
		return err
	}
	start := time.Now()
	pages, err := app.ExportUC.Export(ctx, doc, outPath)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d pages to %s in %s\n", pages, outPath, time.Since(start).Round(time.Millisecond))
	return nil
}

func resolvePage(ctx context.Context, app *bootstrap.App, path, pageArg string) (*domain.Document, int, error) {
	doc, err := app.Describer.Describe(ctx, path)
	if err != nil {
		return nil, 0, err
	}
	page, err := strconv.Atoi(pageArg)
	if err != nil || page < 1 || page > doc.PageCount {
		return nil, 0, fmt.Errorf("page %q out of range 1..%d", pageArg, doc.PageCount)
	}
	return doc, page - 1, nil
}
