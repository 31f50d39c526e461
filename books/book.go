package books

type Book struct {
	ID     int64  `db:"id"`
	Title  string `db:"title"`
	Author string `db:"author"`
}

// BookInput is the body of create and update requests.
type BookInput struct {
	Title  string `json:"title" validate:"required"`
	Author string `json:"author" validate:"required"`
}

// BookView is how a book is returned to clients.
type BookView struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
}

type DeletedResponse struct {
	Message string `json:"message"`
}

func toView(book Book) BookView {
	return BookView{
		ID:     book.ID,
		Title:  book.Title,
		Author: book.Author,
	}
}
