package books

//go:generate go run ../server/gen -pattern=. "-title=Bookshelf API" "-version=1.0.0" "-description=Create, read, update and delete books" "-servers=http://localhost:8000" "-output=../docs/openapi.yaml"
