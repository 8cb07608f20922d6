package config

const (
	// DefaultDatabasePath is the default path of the local cache database
	DefaultDatabasePath = "./booklibrary.db"

	// DefaultAPIBaseURL is the catalog server used when API_BASE_URL is unset
	DefaultAPIBaseURL = "http://localhost:8080/"

	// DefaultDownloadsSubDir is the folder under the downloads directory that holds books
	DefaultDownloadsSubDir = "BookLibraryApp"
)
