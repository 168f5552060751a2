package internal

type Database interface {
	WriteLogMessage(data Data) error
}

type Data interface {
	DataType() string
}
