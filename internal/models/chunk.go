package models

import "time"

// ManualChunk 技术手册分块元数据表
// 由文档摄取服务写入，本服务只读
type ManualChunk struct {
	ChunkID         string    `gorm:"column:chunk_id;primaryKey;size:64" json:"chunk_id"`
	Source          string    `gorm:"column:source;size:255;index" json:"source"`
	PageSection     string    `gorm:"column:page_section;size:64" json:"page_section"`
	ChunkIndex      int       `gorm:"column:chunk_index" json:"chunk_index"`
	EquipmentModel  string    `gorm:"column:equipment_model;size:64;index" json:"equipment_model"`
	ContentCategory string    `gorm:"column:content_category;size:32;index" json:"content_category"`
	Content         string    `gorm:"column:content;type:text" json:"content"`
	PrevChunkID     string    `gorm:"column:prev_chunk_id;size:64" json:"prev_chunk_id"`
	NextChunkID     string    `gorm:"column:next_chunk_id;size:64" json:"next_chunk_id"`
	IngestedAt      time.Time `gorm:"column:ingested_at" json:"ingested_at"`
}

// TableName 指定表名
func (ManualChunk) TableName() string {
	return "manual_chunks"
}
