package converter

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"formatconv/contracts"
	"formatconv/pdf_writer"
)

type pageTask struct {
	file  contracts.File
	index int
}

type pageResult struct {
	name   string
	jpeg   []byte
	width  int
	height int
	index  int
	err    error
}

// imagesToPDFAdapter places one image per page. Images are decoded and
// JPEG-encoded by a worker pool; pages are added strictly in selection
// order.
type imagesToPDFAdapter struct{}

func (a *imagesToPDFAdapter) Name() string { return "images-to-pdf" }

func (a *imagesToPDFAdapter) Convert(ctx context.Context, files []contracts.File, opts contracts.Options, progress contracts.ProgressFunc) ([]contracts.Payload, error) {
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: no images to place", contracts.ErrValidation)
	}
	composer, err := pdf_writer.NewComposer(opts.PageSize)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var totalSize int64
	for _, f := range files {
		totalSize += f.Size
	}

	taskChan := make(chan pageTask)
	resultChan := make(chan pageResult, calcBufferSize(totalSize, len(files)))

	numWorkers := min(max(runtime.NumCPU()-1, 1), len(files))
	wg := &sync.WaitGroup{}
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go pageWorker(ctx, taskChan, resultChan, opts, wg)
	}

	go func() {
		defer close(taskChan)
		for i, f := range files {
			select {
			case taskChan <- pageTask{file: f, index: i}:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(resultChan)
	}()

	resultsBuffer := make(map[int]pageResult)
	nextIndex := 0
	var firstErr error

	for result := range resultChan {
		if firstErr != nil {
			continue
		}
		if result.err != nil {
			firstErr = result.err
			cancel()
			continue
		}
		resultsBuffer[result.index] = result

		for {
			r, ok := resultsBuffer[nextIndex]
			if !ok {
				break
			}
			if err := composer.AddImage(r.name, r.jpeg, r.width, r.height); err != nil {
				firstErr = err
				cancel()
				break
			}
			delete(resultsBuffer, nextIndex)
			nextIndex++
			report(progress, nextIndex, len(files))
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}
	if nextIndex != len(files) {
		return nil, context.Cause(ctx)
	}

	data, err := composer.Bytes()
	if err != nil {
		return nil, err
	}

	name := CombinedPDFName
	if len(files) == 1 {
		name = OutputName(files[0].BaseName(), contracts.FormatPDF)
	}
	return []contracts.Payload{payload(name, contracts.FormatPDF, data, 0, 0)}, nil
}

func pageWorker(ctx context.Context, taskChan <-chan pageTask, resultChan chan<- pageResult, opts contracts.Options, wg *sync.WaitGroup) {
	defer wg.Done()

	for task := range taskChan {
		if ctx.Err() != nil {
			continue
		}
		res := pageResult{name: task.file.Name, index: task.index}

		img, err := decodeImage(task.file)
		if err != nil {
			res.err = err
			resultChan <- res
			continue
		}
		// JPEG has no alpha, so pages are always flattened
		canvas := surface(img, contracts.FormatJPG, opts)
		data, err := encode(ctx, canvas, contracts.FormatJPG, opts, nil)
		if err != nil {
			res.err = fmt.Errorf("%s: %w", task.file.Name, err)
			resultChan <- res
			continue
		}
		b := canvas.Bounds()
		res.jpeg, res.width, res.height = data, b.Dx(), b.Dy()
		resultChan <- res
	}
}

// calcBufferSize bounds how many encoded pages may wait for their turn.
func calcBufferSize(totalSize int64, files int) int {
	const maxBufferSize = 200 * 1024 * 1024 // 200 MB
	if files == 0 || totalSize <= 0 {
		return 1
	}
	avg := totalSize / int64(files)
	if avg == 0 {
		return files
	}
	return min(max(int(maxBufferSize/avg), 1), files)
}
