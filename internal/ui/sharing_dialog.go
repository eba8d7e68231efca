package ui

import (
	"fmt"
	"time"

	"clip-studio/internal/app"
	"clip-studio/internal/models"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
)

// SharingDialog creates a download link for a published clip and copies it to the clipboard
type SharingDialog struct {
	window fyne.Window
	dialog *dialog.CustomDialog
	record *models.UploadRecord

	// UI components
	clipInfoLabel *widget.Label
	linkEntry     *widget.Entry
	expiresLabel  *widget.Label
	createBtn     *widget.Button
	copyBtn       *widget.Button
	closeBtn      *widget.Button

	// Data
	link      string
	expiresAt time.Time
	onLink    func(uploadID string) (string, error)
}

// NewSharingDialog creates a sharing dialog for record
func NewSharingDialog(parent fyne.Window, record *models.UploadRecord, onLink func(string) (string, error)) *SharingDialog {
	d := &SharingDialog{
		window: parent,
		record: record,
		onLink: onLink,
	}

	d.setupDialog()
	return d
}

// Show displays the sharing dialog
func (d *SharingDialog) Show() {
	d.dialog.Show()
}

// Hide closes the sharing dialog
func (d *SharingDialog) Hide() {
	d.dialog.Hide()
}

func (d *SharingDialog) setupDialog() {
	d.clipInfoLabel = widget.NewLabel(fmt.Sprintf("Sharing: %s", d.record.FileName))
	d.clipInfoLabel.TextStyle = fyne.TextStyle{Bold: true}

	clipDetails := widget.NewLabel(fmt.Sprintf("Size: %s • Length: %s • Published %s",
		formatFileSize(d.record.FileSize),
		formatClock(d.record.Duration),
		formatRelativeTime(d.record.UpdatedAt)))
	clipDetails.TextStyle = fyne.TextStyle{Italic: true}

	linkLabel := widget.NewLabel("Download link:")
	linkLabel.TextStyle = fyne.TextStyle{Bold: true}

	d.linkEntry = widget.NewEntry()
	d.linkEntry.SetPlaceHolder("Create a link to share this clip")
	d.linkEntry.Disable()

	d.expiresLabel = widget.NewLabel(fmt.Sprintf("Links stay valid for %s.", formatLinkLifetime(app.LinkExpiration)))
	d.expiresLabel.TextStyle = fyne.TextStyle{Italic: true}

	d.createBtn = widget.NewButton("Create Link", d.createLink)
	d.createBtn.Icon = theme.MailForwardIcon()
	d.createBtn.Importance = widget.HighImportance
	if d.record.Status != models.UploadCompleted {
		d.createBtn.Disable()
		d.expiresLabel.SetText("Only published clips can be shared.")
	}

	d.copyBtn = widget.NewButton("Copy", d.copyLink)
	d.copyBtn.Icon = theme.ContentCopyIcon()
	d.copyBtn.Disable()

	d.closeBtn = widget.NewButton("Close", func() {
		d.Hide()
	})

	clipSection := container.NewVBox(
		d.clipInfoLabel,
		clipDetails,
	)

	linkSection := container.NewVBox(
		linkLabel,
		container.NewBorder(nil, nil, nil, d.copyBtn, d.linkEntry),
		d.expiresLabel,
	)

	buttonSection := container.NewHBox(
		d.closeBtn,
		widget.NewSeparator(),
		d.createBtn,
	)

	content := container.NewVBox(
		clipSection,
		widget.NewSeparator(),
		linkSection,
		widget.NewSeparator(),
		buttonSection,
	)

	d.dialog = dialog.NewCustomWithoutButtons("Share Clip", content, d.window)
	d.dialog.Resize(fyne.NewSize(550, 280))
}

func (d *SharingDialog) createLink() {
	if d.onLink == nil {
		return
	}

	d.createBtn.SetText("Creating...")
	d.createBtn.Disable()

	id := d.record.ID
	go func() {
		link, err := d.onLink(id)
		fyne.Do(func() {
			if err != nil {
				// the controller has already shown the failure
				d.createBtn.SetText("Create Link")
				d.createBtn.Enable()
				return
			}
			d.setLink(link, time.Now().Add(app.LinkExpiration))
		})
	}()
}

func (d *SharingDialog) setLink(link string, expiresAt time.Time) {
	d.link = link
	d.expiresAt = expiresAt
	d.linkEntry.SetText(link)
	d.expiresLabel.SetText(fmt.Sprintf("Link %s.", formatExpiration(expiresAt)))
	d.createBtn.SetText("Create New Link")
	d.createBtn.Enable()
	d.copyBtn.Enable()
}

func (d *SharingDialog) copyLink() {
	if d.link == "" {
		return
	}
	if time.Now().After(d.expiresAt) {
		dialog.ShowInformation("Link Expired", "This link has expired. Create a new one.", d.window)
		return
	}
	d.window.Clipboard().SetContent(d.link)
	d.copyBtn.SetText("Copied")
}

func formatLinkLifetime(d time.Duration) string {
	if d%(24*time.Hour) == 0 {
		days := int(d / (24 * time.Hour))
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	return fmt.Sprintf("%d hours", int(d.Hours()))
}
