package support

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cucumber/godog"

	"github.com/docreader-go/docreader/internal/delivery"
	"github.com/docreader-go/docreader/internal/docerr"
)

const testRecognizerID = "acme/recognizer"

// RegisterModelDeliverySteps wires the model_delivery.feature steps.
func (tc *TestContext) RegisterModelDeliverySteps(sc *godog.ScenarioContext) {
	sc.Step(`^a fake hub serving recognizer model "([^"]*)" with valid weights$`, tc.aFakeHubWithValidWeights)
	sc.Step(`^a fake hub serving recognizer model "([^"]*)" with no weights file$`, tc.aFakeHubWithNoWeights)
	sc.Step(`^a local model directory$`, tc.aLocalModelDirectory)
	sc.Step(`^I ensure the model is ready$`, tc.iEnsureTheModelIsReady)
	sc.Step(`^ensure_ready succeeds$`, tc.ensureReadySucceeds)
	sc.Step(`^ensure_ready fails with a ModelDeliveryFailed error$`, tc.ensureReadyFailsWithModelDeliveryFailed)
	sc.Step(`^verify_offline_readiness succeeds$`, tc.verifyOfflineReadinessSucceeds)
	sc.Step(`^verify_offline_readiness fails with a ModelDeliveryFailed error$`, tc.verifyOfflineReadinessFailsWithModelDeliveryFailed)
	sc.Step(`^a byte is flipped in the downloaded "\.safetensors" file$`, tc.aByteIsFlippedInTheSafetensorsFile)
	sc.Step(`^no file was fetched from the hub$`, tc.noFileWasFetchedFromTheHub)
}

func (tc *TestContext) setUpResolver() {
	dir, err := os.MkdirTemp("", "docreader-delivery-*")
	if err != nil {
		panic(err)
	}
	tc.ModelsDir = filepath.Join(dir, "models")
	tc.StatePath = filepath.Join(dir, "state.json")
}

func (tc *TestContext) aFakeHubWithValidWeights(_ string) error {
	tc.setUpResolver()
	tc.Hub = newFakeHubWithWeights()
	tc.Resolver = delivery.NewResolver(tc.ModelsDir, tc.StatePath, tc.Hub)
	return nil
}

func (tc *TestContext) aFakeHubWithNoWeights(_ string) error {
	tc.setUpResolver()
	tc.Hub = newFakeHubWithoutWeights()
	tc.Resolver = delivery.NewResolver(tc.ModelsDir, tc.StatePath, tc.Hub)
	return nil
}

func (tc *TestContext) aLocalModelDirectory() error {
	dir, err := os.MkdirTemp("", "docreader-local-model-*")
	if err != nil {
		return err
	}
	tc.LocalModelDir = dir
	tc.setUpResolver()
	tc.Hub = newFakeHubWithWeights()
	tc.Resolver = delivery.NewResolver(tc.ModelsDir, tc.StatePath, tc.Hub)
	return nil
}

func (tc *TestContext) iEnsureTheModelIsReady() error {
	modelID := testRecognizerID
	if tc.LocalModelDir != "" {
		modelID = tc.LocalModelDir
	}
	ready, err := tc.Resolver.EnsureReady(tc.ctx, modelID, "")
	tc.Ready = ready
	tc.EnsureErr = err
	return nil
}

func (tc *TestContext) ensureReadySucceeds() error {
	if tc.EnsureErr != nil {
		return fmt.Errorf("ensure_ready failed: %w", tc.EnsureErr)
	}
	return nil
}

func (tc *TestContext) ensureReadyFailsWithModelDeliveryFailed() error {
	if tc.EnsureErr == nil {
		return fmt.Errorf("expected ensure_ready to fail, it succeeded")
	}
	if docerr.KindOf(tc.EnsureErr) != docerr.ModelDeliveryFailed {
		return fmt.Errorf("expected ModelDeliveryFailed, got %v", docerr.KindOf(tc.EnsureErr))
	}
	return nil
}

func (tc *TestContext) verifyOfflineReadinessSucceeds() error {
	modelID := testRecognizerID
	if tc.LocalModelDir != "" {
		modelID = tc.LocalModelDir
	}
	if err := tc.Resolver.VerifyOfflineReadiness(modelID, ""); err != nil {
		return fmt.Errorf("verify_offline_readiness failed: %w", err)
	}
	return nil
}

func (tc *TestContext) verifyOfflineReadinessFailsWithModelDeliveryFailed() error {
	tc.VerifyErr = tc.Resolver.VerifyOfflineReadiness(testRecognizerID, "")
	if tc.VerifyErr == nil {
		return fmt.Errorf("expected verify_offline_readiness to fail, it succeeded")
	}
	if docerr.KindOf(tc.VerifyErr) != docerr.ModelDeliveryFailed {
		return fmt.Errorf("expected ModelDeliveryFailed, got %v", docerr.KindOf(tc.VerifyErr))
	}
	return nil
}

func (tc *TestContext) aByteIsFlippedInTheSafetensorsFile() error {
	path := filepath.Join(tc.Ready.RecognizerDir, "model.safetensors")
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	data[0] ^= 0xFF
	return os.WriteFile(path, data, 0o644)
}

func (tc *TestContext) noFileWasFetchedFromTheHub() error {
	if tc.Hub.fetchCount != 0 {
		return fmt.Errorf("expected no fetches, got %d", tc.Hub.fetchCount)
	}
	return nil
}
