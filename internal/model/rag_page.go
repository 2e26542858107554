package model

// RAGPage holds the extracted text of one PDF page. Pages are the source the
// chunk set and every index are rebuilt from.
type RAGPage struct {
	ID         uint   `gorm:"primaryKey" json:"id"`
	DocumentID uint   `gorm:"not null;uniqueIndex:idx_rag_page_doc_number" json:"document_id"`
	Number     int    `gorm:"not null;uniqueIndex:idx_rag_page_doc_number" json:"number"`
	Content    string `gorm:"type:text;not null" json:"content"`
}
