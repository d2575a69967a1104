package dto

type SelectFileOutput struct {
	Path     string
	Selected bool
}

type UploadInput struct {
	SourceArchive   string
	DestinationRoot string
}

type UploadOutput struct {
	TargetPath string
}
