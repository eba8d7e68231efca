package ui

import (
	"testing"
	"time"

	"clip-studio/internal/models"

	"fyne.io/fyne/v2/test"
)

func TestSharingDialog_Creation(t *testing.T) {
	testApp := test.NewApp()
	defer testApp.Quit()
	testWindow := testApp.NewWindow("Test")

	record := &models.UploadRecord{ID: "up-1", FileName: "clip.mp4", Status: models.UploadCompleted, UpdatedAt: time.Now()}
	sharingDialog := NewSharingDialog(testWindow, record, nil)

	if sharingDialog.dialog == nil {
		t.Fatal("Dialog not initialized")
	}
	if sharingDialog.clipInfoLabel.Text != "Sharing: clip.mp4" {
		t.Errorf("Unexpected title '%s'", sharingDialog.clipInfoLabel.Text)
	}
	if sharingDialog.createBtn.Disabled() {
		t.Error("A published clip can be shared")
	}
	if !sharingDialog.copyBtn.Disabled() {
		t.Error("Copy should wait for a link")
	}
	if sharingDialog.expiresLabel.Text != "Links stay valid for 1 day." {
		t.Errorf("Unexpected expiry text '%s'", sharingDialog.expiresLabel.Text)
	}
}

func TestSharingDialog_UnpublishedClip(t *testing.T) {
	testApp := test.NewApp()
	defer testApp.Quit()
	testWindow := testApp.NewWindow("Test")

	record := &models.UploadRecord{ID: "up-2", FileName: "clip.mp4", Status: models.UploadFailed}
	sharingDialog := NewSharingDialog(testWindow, record, nil)
	if !sharingDialog.createBtn.Disabled() {
		t.Error("Only published clips can be shared")
	}
}

func TestSharingDialog_CopyLink(t *testing.T) {
	testApp := test.NewApp()
	defer testApp.Quit()
	testWindow := testApp.NewWindow("Test")

	record := &models.UploadRecord{ID: "up-1", FileName: "clip.mp4", Status: models.UploadCompleted}
	sharingDialog := NewSharingDialog(testWindow, record, nil)

	sharingDialog.setLink("https://example.test/drafts/clip.mp4", time.Now().Add(24*time.Hour))
	if sharingDialog.linkEntry.Text != "https://example.test/drafts/clip.mp4" {
		t.Errorf("Unexpected link '%s'", sharingDialog.linkEntry.Text)
	}
	if sharingDialog.copyBtn.Disabled() {
		t.Error("Copy should be enabled once a link exists")
	}

	sharingDialog.copyLink()
	if got := testWindow.Clipboard().Content(); got != "https://example.test/drafts/clip.mp4" {
		t.Errorf("Expected link on the clipboard, got '%s'", got)
	}

	sharingDialog.setLink("https://example.test/old", time.Now().Add(-time.Minute))
	testWindow.Clipboard().SetContent("")
	sharingDialog.copyLink()
	if got := testWindow.Clipboard().Content(); got != "" {
		t.Errorf("Expired links must not be copied, got '%s'", got)
	}
}

func TestFormatLinkLifetime(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{24 * time.Hour, "1 day"},
		{72 * time.Hour, "3 days"},
		{6 * time.Hour, "6 hours"},
	}

	for _, test := range tests {
		if got := formatLinkLifetime(test.input); got != test.expected {
			t.Errorf("formatLinkLifetime(%v) = %s, expected %s", test.input, got, test.expected)
		}
	}
}
