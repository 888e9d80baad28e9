package model

import (
	"slices"
	"strings"
)

// ProductRef locates a product inside the brand and category hierarchy.
type ProductRef struct {
	Brand    *Brand
	Category *Category
	Product  *Product
}

// FindProduct resolves a product id back through the catalog hierarchy.
func (d *Document) FindProduct(id string) (ProductRef, bool) {
	if d == nil || id == "" {
		return ProductRef{}, false
	}
	for bi := range d.Brands {
		b := &d.Brands[bi]
		for ci := range b.Categories {
			c := &b.Categories[ci]
			for pi := range c.Products {
				if c.Products[pi].ID == id {
					return ProductRef{Brand: b, Category: c, Product: &c.Products[pi]}, true
				}
			}
		}
	}
	return ProductRef{}, false
}

// Products flattens the catalog in brand, category, product order.
func (d *Document) Products() []Product {
	var out []Product
	for _, b := range d.Brands {
		for _, c := range b.Categories {
			out = append(out, c.Products...)
		}
	}
	return out
}

// Images returns the product's still images, main image first, without duplicates.
func (p Product) Images() []string {
	return uniqueNonEmpty(append([]string{p.ImageURL}, p.GalleryURLs...))
}

// Videos returns the product's video URLs without duplicates.
func (p Product) Videos() []string {
	return uniqueNonEmpty(append([]string{p.VideoURL}, p.VideoURLs...))
}

// VerifyAdmin matches a console login: case-insensitive name, exact PIN.
func (d *Document) VerifyAdmin(name, pin string) (Admin, bool) {
	name = strings.TrimSpace(name)
	for _, a := range d.Admins {
		if strings.EqualFold(a.Name, name) && a.PIN == pin && pin != "" {
			return a, true
		}
	}
	return Admin{}, false
}

func uniqueNonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
