package services

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"os"
	"strings"
	"time"

	_ "image/jpeg"
	_ "image/png"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/pawsense/pawsense-backend/internal/domain/identity"
	"github.com/pawsense/pawsense-backend/internal/domain/registry"
	"github.com/pawsense/pawsense-backend/internal/platform/gcs"
	"github.com/pawsense/pawsense-backend/internal/platform/logger"
)

// ErrInvalidImage marks uploads that could not be decoded as an image.
var ErrInvalidImage = errors.New("invalid image")

const (
	avatarSize = 512
	// 206pt fills a 512px circle with two glyphs of the bundled font.
	avatarFontSize = 206
)

// AvatarService renders initials avatars and processed photo uploads into the
// avatar bucket. Methods mutate the subject's avatar fields in place;
// persisting them is the caller's job.
type AvatarService interface {
	CreateAndUploadPetAvatar(ctx context.Context, pet *registry.Pet) error
	CreateAndUploadPetAvatarFromImage(ctx context.Context, pet *registry.Pet, raw []byte) error
	CreateAndUploadUserAvatar(ctx context.Context, user *identity.User) error
	CreateAndUploadUserAvatarFromImage(ctx context.Context, user *identity.User, raw []byte) error
}

type avatarService struct {
	log     *logger.Logger
	bucket  gcs.BucketService
	palette avatarPalette
	face    font.Face
}

func NewAvatarService(log *logger.Logger, bucket gcs.BucketService) (AvatarService, error) {
	svcLog := log.With("service", "AvatarService")

	palette, err := loadAvatarPalette(os.Getenv("AVATAR_COLORS_JSON_PATH"))
	if err != nil {
		return nil, err
	}
	face, err := loadAvatarFont(os.Getenv("AVATAR_FONT"))
	if err != nil {
		return nil, err
	}
	svcLog.Info("avatar assets loaded", "palette_size", len(palette.colors))

	return &avatarService{
		log:     svcLog,
		bucket:  bucket,
		palette: palette,
		face:    face,
	}, nil
}

func (as *avatarService) CreateAndUploadPetAvatar(ctx context.Context, pet *registry.Pet) error {
	if pet == nil || pet.ID == uuid.Nil {
		return fmt.Errorf("pet required")
	}
	pet.AvatarColor = as.palette.ensure(pet.AvatarColor)
	png, err := as.drawInitials(petInitials(pet.Name), pet.AvatarColor)
	if err != nil {
		return err
	}
	obj, err := as.store(ctx, "pet_avatar", pet.ID, png, pet.AvatarBucketKey)
	if err != nil {
		return err
	}
	pet.AvatarBucketKey, pet.AvatarURL = obj.key, obj.url
	return nil
}

func (as *avatarService) CreateAndUploadPetAvatarFromImage(ctx context.Context, pet *registry.Pet, raw []byte) error {
	if pet == nil || pet.ID == uuid.Nil {
		return fmt.Errorf("pet required")
	}
	png, err := normalizePhoto(raw, avatarSize)
	if err != nil {
		return err
	}
	obj, err := as.store(ctx, "pet_avatar", pet.ID, png, pet.AvatarBucketKey)
	if err != nil {
		return err
	}
	pet.AvatarBucketKey, pet.AvatarURL = obj.key, obj.url
	return nil
}

func (as *avatarService) CreateAndUploadUserAvatar(ctx context.Context, user *identity.User) error {
	if user == nil || user.ID == uuid.Nil {
		return fmt.Errorf("user required")
	}
	user.AvatarColor = as.palette.ensure(user.AvatarColor)
	png, err := as.drawInitials(userInitials(user.FirstName, user.LastName), user.AvatarColor)
	if err != nil {
		return err
	}
	obj, err := as.store(ctx, "user_avatar", user.ID, png, user.AvatarBucketKey)
	if err != nil {
		return err
	}
	user.AvatarBucketKey, user.AvatarURL = obj.key, obj.url
	return nil
}

func (as *avatarService) CreateAndUploadUserAvatarFromImage(ctx context.Context, user *identity.User, raw []byte) error {
	if user == nil || user.ID == uuid.Nil {
		return fmt.Errorf("user required")
	}
	png, err := normalizePhoto(raw, avatarSize)
	if err != nil {
		return err
	}
	obj, err := as.store(ctx, "user_avatar", user.ID, png, user.AvatarBucketKey)
	if err != nil {
		return err
	}
	user.AvatarBucketKey, user.AvatarURL = obj.key, obj.url
	return nil
}

type storedAvatar struct {
	key string
	url string
}

// store uploads the payload under a fresh versioned key so CDN caches never
// serve a stale object, then deletes the previous key best-effort.
func (as *avatarService) store(ctx context.Context, prefix string, id uuid.UUID, png []byte, oldKey string) (storedAvatar, error) {
	key := fmt.Sprintf("%s/%s/%d.png", prefix, id, time.Now().UnixNano())
	if err := as.bucket.UploadObject(ctx, gcs.BucketCategoryAvatar, key, bytes.NewReader(png)); err != nil {
		return storedAvatar{}, fmt.Errorf("upload avatar: %w", err)
	}
	obj := storedAvatar{key: key, url: as.bucket.PublicURL(gcs.BucketCategoryAvatar, key)}

	// Delete only after the new object is live.
	if old := strings.TrimSpace(oldKey); old != "" && old != key {
		if err := as.bucket.DeleteObject(ctx, gcs.BucketCategoryAvatar, old); err != nil {
			as.log.Warn("stale avatar delete failed (ignored)", "key", old, "error", err)
		}
	}
	return obj, nil
}

// drawInitials renders a filled circle in the subject's color with white
// initials centered on it.
func (as *avatarService) drawInitials(initials, hexColor string) ([]byte, error) {
	dc := gg.NewContext(avatarSize, avatarSize)
	dc.SetColor(as.palette.lookup(hexColor))
	dc.DrawCircle(avatarSize/2, avatarSize/2, avatarSize/2)
	dc.Fill()

	dc.SetFontFace(as.face)
	dc.SetColor(color.White)
	dc.DrawStringAnchored(initials, avatarSize/2, avatarSize/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode avatar png: %w", err)
	}
	return buf.Bytes(), nil
}

// normalizePhoto turns an uploaded image into the square PNG the CDN serves:
// center-cropped, scaled to size, and masked to a circle.
func normalizePhoto(raw []byte, size int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := src.Bounds()
	side := min(bounds.Dx(), bounds.Dy())
	origin := image.Pt(
		bounds.Min.X+(bounds.Dx()-side)/2,
		bounds.Min.Y+(bounds.Dy()-side)/2,
	)
	square := image.NewRGBA(image.Rect(0, 0, side, side))
	draw.Draw(square, square.Bounds(), src, origin, draw.Src)

	scaled := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), square, square.Bounds(), draw.Over, nil)

	dc := gg.NewContext(size, size)
	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2)
	dc.Clip()
	dc.DrawImage(scaled, 0, 0)

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, fmt.Errorf("encode avatar png: %w", err)
	}
	return out.Bytes(), nil
}

// avatarPalette is the closed set of brand colors initials avatars draw on.
type avatarPalette struct {
	colors []color.NRGBA
	byHex  map[string]color.NRGBA
}

func loadAvatarPalette(path string) (avatarPalette, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return avatarPalette{}, fmt.Errorf("AVATAR_COLORS_JSON_PATH not set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return avatarPalette{}, fmt.Errorf("read avatar colors: %w", err)
	}
	var colors []color.NRGBA
	if err := json.Unmarshal(data, &colors); err != nil {
		return avatarPalette{}, fmt.Errorf("parse avatar colors: %w", err)
	}
	if len(colors) == 0 {
		return avatarPalette{}, fmt.Errorf("avatar palette %s is empty", path)
	}
	p := avatarPalette{colors: colors, byHex: make(map[string]color.NRGBA, len(colors))}
	for _, c := range colors {
		p.byHex[hexOf(c)] = c
	}
	return p, nil
}

// ensure keeps a color already in the palette and deals a random member
// otherwise, so every subject ends up on a brand color.
func (p avatarPalette) ensure(current string) string {
	if h := canonicalHex(current); h != "" {
		if _, ok := p.byHex[h]; ok {
			return h
		}
	}
	return hexOf(p.random())
}

func (p avatarPalette) lookup(hexColor string) color.NRGBA {
	if h := canonicalHex(hexColor); h != "" {
		if c, ok := p.byHex[h]; ok {
			return c
		}
	}
	return p.random()
}

func (p avatarPalette) random() color.NRGBA {
	return p.colors[rand.Intn(len(p.colors))]
}

// canonicalHex maps "#aabbcc", "AABBCC", " #AaBbCc " to "#AABBCC"; anything
// that is not a 6-digit hex color comes back empty.
func canonicalHex(s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	if !strings.HasPrefix(s, "#") {
		s = "#" + s
	}
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "#"))
	if err != nil || len(raw) != 3 {
		return ""
	}
	return s
}

func hexOf(c color.NRGBA) string {
	return fmt.Sprintf("#%02X%02X%02X", c.R, c.G, c.B)
}

// petInitials takes the first letter of the first and last word of the pet's
// name, so "Biscuit" renders "B" and "Sir Barksalot" renders "SB".
func petInitials(name string) string {
	words := strings.Fields(name)
	if len(words) == 0 {
		return "?"
	}
	initials := firstRuneUpper(words[0])
	if len(words) > 1 {
		initials += firstRuneUpper(words[len(words)-1])
	}
	return initials
}

func userInitials(first, last string) string {
	return firstRuneUpper(strings.TrimSpace(first)) + firstRuneUpper(strings.TrimSpace(last))
}

func firstRuneUpper(s string) string {
	for _, r := range s {
		return strings.ToUpper(string(r))
	}
	return "?"
}

func loadAvatarFont(path string) (font.Face, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("AVATAR_FONT not set")
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read avatar font: %w", err)
	}
	ttf, err := truetype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse avatar font: %w", err)
	}
	return truetype.NewFace(ttf, &truetype.Options{
		Size:    avatarFontSize,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
