package adapter

// LinkPublisher turns a local artifact into a fetchable URL valid for a
// bounded duration. The backing file must outlive the link.
type LinkPublisher interface {
	Publish(filePath string) (url string, err error)
}
