// Package model defines the StoreDocument aggregate shared by every kiosk and
// the admin console, together with the pure helpers that read it.
package model

// SchemaVersion is stamped into every migrated document.
const SchemaVersion = 3

// Document is the single shared aggregate describing catalog, marketing and
// configuration state. Fleet is merged in from a separate table and never
// written back through the document row.
type Document struct {
	SchemaVersion       int                 `json:"schemaVersion"`
	UpdatedAt           string              `json:"updatedAt,omitempty"`
	Brands              []Brand             `json:"brands"`
	Catalogues          []Catalogue         `json:"catalogues"`
	Pricelists          []Pricelist         `json:"pricelists"`
	PricelistBrands     []PricelistBrand    `json:"pricelistBrands"`
	Ads                 Ads                 `json:"ads"`
	ScreensaverSettings ScreensaverSettings `json:"screensaverSettings"`
	Fleet               []FleetDevice       `json:"fleet,omitempty"`
	Archive             Archive             `json:"archive"`
	Admins              []Admin             `json:"admins"`
}

type Brand struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	LogoURL    string     `json:"logoUrl,omitempty"`
	Categories []Category `json:"categories"`
}

type Category struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	ImageURL string    `json:"imageUrl,omitempty"`
	Products []Product `json:"products"`
}

type Product struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	SKU         string            `json:"sku,omitempty"`
	Description string            `json:"description,omitempty"`
	ImageURL    string            `json:"imageUrl,omitempty"`
	GalleryURLs []string          `json:"galleryUrls,omitempty"`
	VideoURL    string            `json:"videoUrl,omitempty"`
	VideoURLs   []string          `json:"videoUrls,omitempty"`
	Specs       map[string]string `json:"specs,omitempty"`
	Manuals     []Manual          `json:"manuals,omitempty"`
}

type Manual struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Catalogue is a paged pamphlet with an optional validity window.
type Catalogue struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	BrandID      string   `json:"brandId,omitempty"`
	ThumbnailURL string   `json:"thumbnailUrl,omitempty"`
	Pages        []string `json:"pages"`
	PDFURL       string   `json:"pdfUrl,omitempty"`
	StartDate    string   `json:"startDate,omitempty"`
	EndDate      string   `json:"endDate,omitempty"`
}

type Pricelist struct {
	ID      string          `json:"id"`
	BrandID string          `json:"brandId"`
	Title   string          `json:"title"`
	Month   string          `json:"month,omitempty"`
	Year    string          `json:"year,omitempty"`
	URL     string          `json:"url,omitempty"`
	Items   []PricelistItem `json:"items,omitempty"`
}

type PricelistItem struct {
	ID          string `json:"id"`
	SKU         string `json:"sku"`
	Description string `json:"description"`
	NormalPrice string `json:"normalPrice,omitempty"`
	PromoPrice  string `json:"promoPrice,omitempty"`
}

type PricelistBrand struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogoURL string `json:"logoUrl,omitempty"`
}

// AdType is the media kind of an advert.
type AdType string

const (
	AdImage AdType = "image"
	AdVideo AdType = "video"
)

// Ad is a scheduled advert in one of the named zones.
type Ad struct {
	ID         string `json:"id"`
	Type       AdType `json:"type"`
	URL        string `json:"url"`
	DateAdded  string `json:"dateAdded,omitempty"`
	StartDate  string `json:"startDate,omitempty"`
	EndDate    string `json:"endDate,omitempty"`
	ActiveDays []int  `json:"activeDays,omitempty"`
}

// AdZone names one of the three advert slots.
type AdZone string

const (
	ZoneHomeBottomLeft  AdZone = "homeBottomLeft"
	ZoneHomeBottomRight AdZone = "homeBottomRight"
	ZoneScreensaver     AdZone = "screensaver"
)

// Ads holds the ordered advert list of each zone.
type Ads struct {
	HomeBottomLeft  []Ad `json:"homeBottomLeft"`
	HomeBottomRight []Ad `json:"homeBottomRight"`
	Screensaver     []Ad `json:"screensaver"`
}

// Zone returns the adverts of the named zone.
func (a Ads) Zone(zone AdZone) []Ad {
	switch zone {
	case ZoneHomeBottomLeft:
		return a.HomeBottomLeft
	case ZoneHomeBottomRight:
		return a.HomeBottomRight
	case ZoneScreensaver:
		return a.Screensaver
	default:
		return nil
	}
}

// Effect is the visual treatment applied to a playback slide.
type Effect string

const (
	EffectRandom Effect = "random"
	EffectZoom   Effect = "zoom"
	EffectDrift  Effect = "drift"
	EffectPan    Effect = "pan"
)

// Effects lists the concrete effects a random roll picks from.
var Effects = []Effect{EffectZoom, EffectDrift, EffectPan}

// WakeBehavior decides where the host returns after idle playback ends.
type WakeBehavior string

const (
	WakeReset  WakeBehavior = "reset"
	WakeResume WakeBehavior = "resume"
)

// ScreensaverSettings configures idle playback. Durations are whole seconds.
type ScreensaverSettings struct {
	IdleTimeout      int          `json:"idleTimeout"`
	ImageDuration    int          `json:"imageDuration"`
	AdWeight         int          `json:"adWeight"`
	PamphletWeight   int          `json:"pamphletWeight"`
	ProductWeight    int          `json:"productWeight"`
	Effect           Effect       `json:"effect"`
	WakeBehavior     WakeBehavior `json:"wakeBehavior"`
	MuteVideos       bool         `json:"muteVideos"`
	EnableSleepMode  bool         `json:"enableSleepMode"`
	ActiveHoursStart string       `json:"activeHoursStart"`
	ActiveHoursEnd   string       `json:"activeHoursEnd"`
}

// DeviceType is the class of a registered device.
type DeviceType string

const (
	DeviceKiosk  DeviceType = "kiosk"
	DeviceMobile DeviceType = "mobile"
	DeviceTV     DeviceType = "tv"
)

// FleetDevice is one row of the per-device fleet table.
type FleetDevice struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	DeviceType       DeviceType `json:"deviceType,omitempty"`
	AssignedZone     string     `json:"assignedZone,omitempty"`
	Status           string     `json:"status,omitempty"`
	LastSeen         string     `json:"lastSeen,omitempty"`
	SignalStrength   int        `json:"signalStrength"`
	ConnectionType   string     `json:"connectionType,omitempty"`
	Version          string     `json:"version,omitempty"`
	RestartRequested bool       `json:"restartRequested,omitempty"`
	RestartRequestID string     `json:"restartRequestId,omitempty"`
	RestartAckID     string     `json:"restartAckId,omitempty"`
}

// RestartPending reports whether a restart was requested and not yet acknowledged.
func (f FleetDevice) RestartPending() bool {
	if f.RestartRequested {
		return true
	}
	return f.RestartRequestID != "" && f.RestartRequestID != f.RestartAckID
}

// Archive holds expired catalogues and soft-deleted entities. DeletedAt maps
// entity ids to the RFC 3339 time they entered the archive.
type Archive struct {
	Catalogues []Catalogue       `json:"catalogues"`
	Brands     []Brand           `json:"brands"`
	Products   []Product         `json:"products"`
	Pricelists []Pricelist       `json:"pricelists"`
	DeletedAt  map[string]string `json:"deletedAt"`
}

// Len counts archived entries across partitions.
func (a Archive) Len() int {
	return len(a.Catalogues) + len(a.Brands) + len(a.Products) + len(a.Pricelists)
}

// Admin is a console credential. PINs are stored as entered.
type Admin struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PIN        string `json:"pin"`
	SuperAdmin bool   `json:"isSuperAdmin,omitempty"`
}
