package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/credits"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/imagegen"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/upload"
	"github.com/MuhamadAgungGumelar/imaginario-api/internal/core/usage"
)

func TestGenerateChargesAndStores(t *testing.T) {
	storage, err := upload.NewLocalProvider(t.TempDir(), "http://cdn.test")
	require.NoError(t, err)
	f := newFixture(t, storage)
	f.fund(t, "u1", 10)
	f.provider.images = []imagegen.Image{{B64JSON: pngB64}, {B64JSON: pngB64}, {B64JSON: pngB64}}

	res, err := f.images.Generate(context.Background(), GenerateInput{
		UserID: "u1", Prompt: "  a   red\tfox ", Size: "1024x1024", Quality: "hd", N: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(6), res.Credits)
	assert.Equal(t, int64(4), res.Balance)
	assert.Equal(t, "a red fox", res.PromptUsed)
	assert.Len(t, res.Uploaded, 3)
	assert.Nil(t, res.ImagesB64)
	assert.Contains(t, res.Uploaded[0].URL, "http://cdn.test/uploads/imaginario/u1/")

	require.Len(t, f.provider.generate, 1)
	assert.Equal(t, "high", f.provider.generate[0].Quality)
	assert.Equal(t, "auto", f.provider.generate[0].Background)

	logs := f.usageLogs(t, "u1")
	require.Len(t, logs, 1)
	assert.Equal(t, int64(6), logs[0].CreditsUsed)
	assert.Equal(t, usage.ActionGenerate, logs[0].Action)
	assert.Equal(t, 3, logs[0].N)

	gens, err := f.generations.ListByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	assert.Equal(t, "a red fox", gens[0].Prompt)
}

func TestGenerateFallsBackToBase64(t *testing.T) {
	f := newFixture(t, failingStorage{})
	f.fund(t, "u1", 1)

	res, err := f.images.Generate(context.Background(), GenerateInput{UserID: "u1", Prompt: "cat", N: 1})
	require.NoError(t, err)
	assert.Nil(t, res.Uploaded)
	assert.Equal(t, []string{pngB64}, res.ImagesB64)
	assert.Equal(t, int64(0), res.Balance)

	f.dispatcher.Flush()
	gens, err := f.generations.ListByUser(context.Background(), "u1", 10)
	require.NoError(t, err)
	require.Len(t, gens, 1)
	results, err := gens[0].DecodeResults()
	require.NoError(t, err)
	assert.Equal(t, pngB64, results[0].B64)
}

func TestGenerateRejectedWithoutCredits(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, "u1", 1)

	_, err := f.images.Generate(context.Background(), GenerateInput{UserID: "u1", Prompt: "cat", N: 2, Quality: "hd"})

	var insufficient *credits.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(1), insufficient.Balance)
	assert.Equal(t, int64(4), insufficient.Cost)
	assert.Equal(t, int64(3), insufficient.Needed)
	assert.Zero(t, f.provider.calls(), "no external work after a rejected debit")
	assert.Equal(t, int64(1), f.balance(t, "u1"))
	assert.Empty(t, f.usageLogs(t, "u1"))
}

func TestGenerateFailuresAreRefunded(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(p *fakeProvider)
		wantErr error
	}{
		{"provider error", func(p *fakeProvider) { p.err = errors.New("boom") }, nil},
		{"content policy", func(p *fakeProvider) { p.err = imagegen.ErrContentPolicy }, imagegen.ErrContentPolicy},
		{"no images", func(p *fakeProvider) { p.images = nil }, imagegen.ErrNoImages},
		{"url only", func(p *fakeProvider) { p.images = []imagegen.Image{{URL: "https://x"}} }, imagegen.ErrNoImages},
		{"timeout", func(p *fakeProvider) { p.block = true }, imagegen.ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.fund(t, "u1", 5)
			tt.setup(f.provider)

			_, err := f.images.Generate(context.Background(), GenerateInput{UserID: "u1", Prompt: "cat", N: 1, Quality: "hd"})

			var failed *credits.WorkFailedError
			require.ErrorAs(t, err, &failed)
			assert.True(t, failed.Refunded)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, int64(5), f.balance(t, "u1"))

			entries, err := f.ledger.History(context.Background(), "u1", 10)
			require.NoError(t, err)
			var debits, refunds int
			for _, e := range entries {
				switch e.Kind {
				case credits.KindDebit:
					debits++
				case credits.KindRefund:
					refunds++
					assert.Equal(t, int64(2), e.Amount)
				}
			}
			assert.Equal(t, 1, debits)
			assert.Equal(t, 1, refunds)

			logs := f.usageLogs(t, "u1")
			require.Len(t, logs, 1)
			assert.Zero(t, logs[0].CreditsUsed)
		})
	}
}

func TestGenerateRefundFailureIsRecorded(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, "u1", 3)
	f.store.broken.Store(true)
	f.provider.err = errors.New("upstream 500")

	_, err := f.images.Generate(context.Background(), GenerateInput{UserID: "u1", Prompt: "cat", N: 1})

	var failed *credits.WorkFailedError
	require.ErrorAs(t, err, &failed)
	assert.False(t, failed.Refunded)
	assert.Equal(t, int64(2), f.balance(t, "u1"))

	logs := f.usageLogs(t, "u1")
	require.Len(t, logs, 1)
	assert.Equal(t, int64(1), logs[0].CreditsUsed)

	var meta map[string]interface{}
	require.NoError(t, json.Unmarshal(logs[0].Meta, &meta))
	assert.Equal(t, true, meta["refund_failed"])
}

func TestEditUsesNormalisedParams(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, "u1", 2)

	res, err := f.images.Edit(context.Background(), EditInput{
		UserID:  "u1",
		Prompt:  "make it blue",
		Size:    "1024",
		Quality: "standard",
		Image:   imagegen.File{Name: "in.png", ContentType: "image/png", Data: []byte("img")},
	})
	require.NoError(t, err)

	assert.Equal(t, int64(2), res.Credits)
	assert.Equal(t, int64(0), res.Balance)
	assert.Equal(t, &UsedParams{Size: "1024x1024", Quality: "medium"}, res.Used)
	require.Len(t, f.provider.edits, 1)
	assert.Equal(t, 1, f.provider.edits[0].N)

	_, err = f.images.Edit(context.Background(), EditInput{UserID: "u1", Prompt: "again"})
	assert.True(t, credits.IsInsufficientCredits(err))
}

func TestConcurrentGenerationsNeverOverdraw(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, "u1", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.images.Generate(context.Background(), GenerateInput{UserID: "u1", Prompt: "cat", N: 3})
		}(i)
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		var insufficient *credits.InsufficientCreditsError
		switch {
		case err == nil:
			ok++
		case errors.As(err, &insufficient):
			rejected++
			assert.Equal(t, int64(1), insufficient.Needed)
			assert.Equal(t, int64(2), insufficient.Balance)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Equal(t, int64(2), f.balance(t, "u1"))
}

func TestEmptyPromptIsRejectedBeforeDebit(t *testing.T) {
	f := newFixture(t, nil)
	f.fund(t, "u1", 5)

	_, err := f.images.Generate(context.Background(), GenerateInput{UserID: "u1", Prompt: " \n\t "})
	assert.ErrorIs(t, err, ErrEmptyPrompt)
	assert.Equal(t, int64(5), f.balance(t, "u1"))
}

func TestNormalizePrompt(t *testing.T) {
	assert.Equal(t, "a b c", NormalizePrompt("  a \n\n b\t\tc  "))
	assert.Equal(t, "abc", NormalizePrompt("a\x00b\x07c"))
	assert.Equal(t, "", NormalizePrompt("   "))
	assert.Equal(t, "gato azul", NormalizePrompt("gato azul"))
}
