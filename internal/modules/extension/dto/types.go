package dto

import "time"

type SelectOutput struct {
	Path     string
	Selected bool
}

type ExtractInput struct {
	SourceArchive   string
	DestinationRoot string
}

type ExtractOutput struct {
	Name       string
	TargetPath string
	Files      int
	Bytes      int64
	Replaced   bool
}

type InstalledInfo struct {
	ID            string
	Name          string
	TargetPath    string
	SourceArchive string
	ArchiveSHA256 string
	Files         int
	Bytes         int64
	ExtractedAt   time.Time
	Present       bool
}
