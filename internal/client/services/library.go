// Package services contains the application services behind the CLI.
// This file defines the library service: catalog browsing with premium
// gating, offline audio downloads and playback, bookmarks, theme,
// subscription redemption and content updates.
package services

import (
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/bankwiser/internal/client/contentpack"
	"github.com/dmitrijs2005/bankwiser/internal/client/downloads"
	"github.com/dmitrijs2005/bankwiser/internal/client/entitlement"
	"github.com/dmitrijs2005/bankwiser/internal/client/models"
	"github.com/dmitrijs2005/bankwiser/internal/client/repositories/content"
	"github.com/dmitrijs2005/bankwiser/internal/common"
)

// Preferences is the slice of the preference store the library uses.
type Preferences interface {
	IsSubscribed(ctx context.Context) (bool, error)
	IsBookmarked(ctx context.Context, kind models.ItemKind, id string) (bool, error)
	SetBookmarked(ctx context.Context, kind models.ItemKind, id string, on bool) error
	Bookmarks(ctx context.Context, kind models.ItemKind) ([]string, error)
	Theme(ctx context.Context) (models.Theme, error)
	SetTheme(ctx context.Context, t models.Theme) error
	DBVersion(ctx context.Context) (int, error)
	ClearUserData(ctx context.Context) error
}

// Downloader is the download orchestrator as seen by the library.
type Downloader interface {
	Download(ctx context.Context, id, url string) bool
	Cancel(id string) bool
	Delete(ctx context.Context, id string) error
	State(id string) downloads.State
	IsDownloaded(ctx context.Context, id string) (bool, error)
	Open(ctx context.Context, id string, w io.WriteCloser) error
	Downloaded(ctx context.Context) (map[string]string, error)
	Subscribe(fn func(downloads.Event)) func()
}

type Redeemer interface {
	Redeem(ctx context.Context, token string) (*entitlement.Claims, error)
}

type ContentUpdater interface {
	Run(ctx context.Context, report func(contentpack.Status)) error
}

// AudioStatus combines the persisted and the transient view of one item.
type AudioStatus struct {
	Audio      models.Audio
	Downloaded bool
	State      downloads.State
}

// LibraryService defines what the CLI can do with the library.
//
// Premium notes and audio are listed for everyone but can only be read,
// downloaded or played with an active subscription (common.ErrPremiumRequired).
type LibraryService interface {
	Categories(ctx context.Context) ([]models.Category, error)
	SubCategories(ctx context.Context, categoryID int64) ([]models.SubCategory, error)
	Notes(ctx context.Context, subCategoryID int64) ([]models.Note, error)
	ReadNote(ctx context.Context, id string) (*models.Note, error)
	FAQs(ctx context.Context, subCategoryID int64) ([]models.FAQ, error)
	MCQs(ctx context.Context, subCategoryID int64) ([]models.MCQ, error)
	AudioItems(ctx context.Context, subCategoryID int64) ([]models.Audio, error)

	AudioStatus(ctx context.Context, id string) (*AudioStatus, error)
	StartDownload(ctx context.Context, id string) (bool, error)
	CancelDownload(id string) bool
	DeleteDownload(ctx context.Context, id string) error
	Downloaded(ctx context.Context) (map[string]string, error)
	Play(ctx context.Context, id string, w io.WriteCloser) error
	OnDownloadEvent(fn func(downloads.Event)) func()

	ToggleBookmark(ctx context.Context, kind models.ItemKind, id string) (bool, error)
	Bookmarks(ctx context.Context, kind models.ItemKind) ([]string, error)
	Theme(ctx context.Context) (models.Theme, error)
	SetTheme(ctx context.Context, theme string) error

	IsSubscribed(ctx context.Context) (bool, error)
	Subscribe(ctx context.Context, token string) (*entitlement.Claims, error)
	SignOut(ctx context.Context) error

	ContentVersion(ctx context.Context) (int, error)
	UpdateContent(ctx context.Context, report func(contentpack.Status)) error
}

type libraryService struct {
	catalog   content.Repository
	prefs     Preferences
	downloads Downloader
	redeemer  Redeemer
	updater   ContentUpdater
}

// NewLibraryService wires the library. redeemer and updater may be nil when
// the corresponding feature is not configured.
func NewLibraryService(catalog content.Repository, prefs Preferences, dl Downloader, redeemer Redeemer, updater ContentUpdater) LibraryService {
	return &libraryService{
		catalog:   catalog,
		prefs:     prefs,
		downloads: dl,
		redeemer:  redeemer,
		updater:   updater,
	}
}

func (s *libraryService) Categories(ctx context.Context) ([]models.Category, error) {
	return s.catalog.Categories(ctx)
}

func (s *libraryService) SubCategories(ctx context.Context, categoryID int64) ([]models.SubCategory, error) {
	return s.catalog.SubCategories(ctx, categoryID)
}

func (s *libraryService) Notes(ctx context.Context, subCategoryID int64) ([]models.Note, error) {
	return s.catalog.Notes(ctx, subCategoryID)
}

func (s *libraryService) ReadNote(ctx context.Context, id string) (*models.Note, error) {
	n, err := s.catalog.Note(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.requirePremium(ctx, n.IsPremium); err != nil {
		return nil, err
	}
	return n, nil
}

func (s *libraryService) FAQs(ctx context.Context, subCategoryID int64) ([]models.FAQ, error) {
	return s.catalog.FAQs(ctx, subCategoryID)
}

func (s *libraryService) MCQs(ctx context.Context, subCategoryID int64) ([]models.MCQ, error) {
	return s.catalog.MCQs(ctx, subCategoryID)
}

func (s *libraryService) AudioItems(ctx context.Context, subCategoryID int64) ([]models.Audio, error) {
	return s.catalog.AudioItems(ctx, subCategoryID)
}

func (s *libraryService) AudioStatus(ctx context.Context, id string) (*AudioStatus, error) {
	a, err := s.catalog.Audio(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.downloads.IsDownloaded(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AudioStatus{Audio: *a, Downloaded: ok, State: s.downloads.State(id)}, nil
}

// StartDownload queues the audio item for offline use. It reports false
// when the item is already downloading or downloaded.
func (s *libraryService) StartDownload(ctx context.Context, id string) (bool, error) {
	a, err := s.catalog.Audio(ctx, id)
	if err != nil {
		return false, err
	}
	if err := s.requirePremium(ctx, a.IsPremium); err != nil {
		return false, err
	}
	if a.URL == "" {
		return false, fmt.Errorf("%w: audio %q has no url", common.ErrInvalidArgument, id)
	}
	return s.downloads.Download(ctx, a.ID, a.URL), nil
}

func (s *libraryService) CancelDownload(id string) bool {
	return s.downloads.Cancel(id)
}

func (s *libraryService) DeleteDownload(ctx context.Context, id string) error {
	return s.downloads.Delete(ctx, id)
}

func (s *libraryService) Downloaded(ctx context.Context) (map[string]string, error) {
	return s.downloads.Downloaded(ctx)
}

// Play decrypts a downloaded item into w. Premium items need an active
// subscription even when already on disk.
func (s *libraryService) Play(ctx context.Context, id string, w io.WriteCloser) error {
	a, err := s.catalog.Audio(ctx, id)
	if err != nil {
		_ = w.Close()
		return err
	}
	if err := s.requirePremium(ctx, a.IsPremium); err != nil {
		_ = w.Close()
		return err
	}
	return s.downloads.Open(ctx, id, w)
}

func (s *libraryService) OnDownloadEvent(fn func(downloads.Event)) func() {
	return s.downloads.Subscribe(fn)
}

// ToggleBookmark flips the bookmark of an item and returns the new value.
func (s *libraryService) ToggleBookmark(ctx context.Context, kind models.ItemKind, id string) (bool, error) {
	if id == "" {
		return false, fmt.Errorf("%w: empty id", common.ErrInvalidArgument)
	}
	on, err := s.prefs.IsBookmarked(ctx, kind, id)
	if err != nil {
		return false, err
	}
	if err := s.prefs.SetBookmarked(ctx, kind, id, !on); err != nil {
		return false, err
	}
	return !on, nil
}

func (s *libraryService) Bookmarks(ctx context.Context, kind models.ItemKind) ([]string, error) {
	return s.prefs.Bookmarks(ctx, kind)
}

func (s *libraryService) Theme(ctx context.Context) (models.Theme, error) {
	return s.prefs.Theme(ctx)
}

func (s *libraryService) SetTheme(ctx context.Context, theme string) error {
	t, err := models.ParseTheme(theme)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidArgument, err)
	}
	return s.prefs.SetTheme(ctx, t)
}

func (s *libraryService) IsSubscribed(ctx context.Context) (bool, error) {
	return s.prefs.IsSubscribed(ctx)
}

func (s *libraryService) Subscribe(ctx context.Context, token string) (*entitlement.Claims, error) {
	if s.redeemer == nil {
		return nil, entitlement.ErrNoSecret
	}
	return s.redeemer.Redeem(ctx, token)
}

// SignOut forgets bookmarks and the subscription flag. Downloads stay on disk.
func (s *libraryService) SignOut(ctx context.Context) error {
	return s.prefs.ClearUserData(ctx)
}

func (s *libraryService) ContentVersion(ctx context.Context) (int, error) {
	return s.prefs.DBVersion(ctx)
}

func (s *libraryService) UpdateContent(ctx context.Context, report func(contentpack.Status)) error {
	if s.updater == nil {
		return fmt.Errorf("%w: content updates are not configured", common.ErrInvalidArgument)
	}
	return s.updater.Run(ctx, report)
}

func (s *libraryService) requirePremium(ctx context.Context, premium bool) error {
	if !premium {
		return nil
	}
	ok, err := s.prefs.IsSubscribed(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrPremiumRequired
	}
	return nil
}
