package models

import (
	"time"

	"abocaments-api/internal/lifecycle"
)

type Category string

const (
	CategoryWaste  Category = "waste"
	CategoryLitter Category = "litter"
)

func (c Category) Valid() bool {
	return c == CategoryWaste || c == CategoryLitter
}

type Report struct {
	Id                string           `firestore:"id" json:"id"`
	CreatedAt         time.Time        `firestore:"createdAt" json:"created_at"`
	UpdatedAt         time.Time        `firestore:"updatedAt" json:"updated_at"`
	Status            lifecycle.Status `firestore:"status" json:"status"`
	Lat               float64          `firestore:"lat" json:"lat"`
	Lon               float64          `firestore:"lon" json:"lon"`
	DistanceM         int              `firestore:"distanceM" json:"distance_m"`
	InsideServiceArea bool             `firestore:"insideServiceArea" json:"inside_service_area"`
	AddressLabel      string           `firestore:"addressLabel,omitempty" json:"address_label,omitempty"`
	Description       string           `firestore:"description,omitempty" json:"description,omitempty"`
	Category          Category         `firestore:"category" json:"category"`
	SubmitterHash     string           `firestore:"submitterHash" json:"-"`
	DeviceId          string           `firestore:"deviceId,omitempty" json:"device_id,omitempty"`
	PhotoCount        int              `firestore:"photoCount" json:"photo_count"`
	FccIncidentId     string           `firestore:"fccIncidentId,omitempty" json:"fcc_incident_id,omitempty"`
	DispatchedAt      time.Time        `firestore:"dispatchedAt,omitempty" json:"dispatched_at,omitzero"`
	LastError         string           `firestore:"lastError" json:"last_error,omitempty"`
	ReplyText         string           `firestore:"replyText,omitempty" json:"reply_text,omitempty"`
	ReplyFrom         string           `firestore:"replyFrom,omitempty" json:"reply_from,omitempty"`
	ReplyAt           time.Time        `firestore:"replyAt,omitempty" json:"reply_at,omitzero"`
}

// ReportMedia is a placeholder for one expected photo. Size and dimensions
// stay zero until the uploaded blob is reconciled.
type ReportMedia struct {
	Id          string    `firestore:"id" json:"id"`
	ReportId    string    `firestore:"reportId" json:"report_id"`
	Index       int       `firestore:"index" json:"index"`
	StoragePath string    `firestore:"storagePath" json:"storage_path"`
	ContentType string    `firestore:"contentType" json:"content_type"`
	SizeBytes   int64     `firestore:"sizeBytes" json:"size_bytes"`
	Width       int       `firestore:"width" json:"width"`
	Height      int       `firestore:"height" json:"height"`
	CreatedAt   time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt   time.Time `firestore:"updatedAt,omitempty" json:"updated_at,omitzero"`
}

type GeocodeCacheEntry struct {
	Key       string    `firestore:"key"`
	Lat       float64   `firestore:"lat"`
	Lon       float64   `firestore:"lon"`
	Label     string    `firestore:"label"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}
