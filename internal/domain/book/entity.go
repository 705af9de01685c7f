package book

// Book 图书(目录中的只读视图)
// 设计说明:
// 1. 图书由目录模块维护,库存账本只按ID读取
// 2. 只保留库存详情展示需要的字段,价格等信息不在这里暴露
type Book struct {
	ID        uint
	ISBN      string // ISBN号(国际标准书号)
	Title     string // 书名
	Author    string // 作者
	Publisher string // 出版社
}
